package server

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/imagify/internal/config"
	"github.com/and161185/imagify/internal/model"
	"github.com/and161185/imagify/internal/orders"
	"go.uber.org/zap"
)

// Reconciler re-verifies CREATED orders that nobody came back to verify,
// e.g. the buyer closed the browser or the webhook was lost.
type Reconciler struct {
	orders   OrderService
	logger   *zap.SugaredLogger
	interval time.Duration
	workers  int

	wg sync.WaitGroup
}

// Outcome is the result of re-verifying one stale order.
type Outcome struct {
	Order      model.Order
	Settlement model.Settlement
	Err        error
}

func NewReconciler(orders OrderService, cfg config.ReconcileConfig, logger *zap.SugaredLogger) *Reconciler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Reconciler{orders: orders, logger: logger, interval: cfg.Interval, workers: workers}
}

// Start launches the poller and its workers. It returns at once; everything
// stops when ctx is done. A zero interval disables reconciliation.
func (rc *Reconciler) Start(ctx context.Context) {
	if rc.interval <= 0 {
		rc.logger.Infow("order reconciliation disabled")
		return
	}

	ch := make(chan model.Order, 10*rc.workers)
	rc.wg.Add(1 + rc.workers)
	go func() {
		defer rc.wg.Done()
		rc.ProcessOrders(ctx, ch)
	}()

	for i := 0; i < rc.workers; i++ {
		go func() {
			defer rc.wg.Done()
			rc.UpdateOrders(ctx, ch, nil)
		}()
	}
}

// Wait blocks until the goroutines launched by Start have exited.
func (rc *Reconciler) Wait() {
	rc.wg.Wait()
}

// ProcessOrders lists stale orders every interval and queues them. Orders
// that do not fit in the queue are picked up on a later tick.
func (rc *Reconciler) ProcessOrders(ctx context.Context, ch chan<- model.Order) {
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			list, err := rc.orders.StaleOrders(ctx)
			if err != nil {
				rc.logger.Errorf("list stale orders: %v", err)
				continue
			}
			skipped := 0
			for _, order := range list {
				select {
				case ch <- order:
				default:
					skipped++
				}
			}
			if skipped > 0 {
				rc.logger.Warnf("reconcile queue full, skipped %d orders", skipped)
			}
		}
	}
}

// UpdateOrders drains ch until it is closed or ctx is done. When out is not
// nil every outcome is sent to it.
func (rc *Reconciler) UpdateOrders(ctx context.Context, ch <-chan model.Order, out chan<- Outcome) {
	for {
		select {
		case <-ctx.Done():
			return
		case order, ok := <-ch:
			if !ok {
				return
			}
			outcome := rc.settle(ctx, order)
			if out != nil {
				out <- outcome
			}
		}
	}
}

func (rc *Reconciler) settle(ctx context.Context, order model.Order) Outcome {
	res, err := rc.orders.VerifyAndSettle(ctx, order.ID)
	switch {
	case err != nil && orders.IsTransient(err):
		rc.logger.Warnw("reconcile: gateway unavailable, will retry", "order_id", order.ID, "error", err)
	case err != nil:
		rc.logger.Errorw("reconcile failed", "order_id", order.ID, "error", err)
	case res.Credited:
		rc.logger.Infow("reconcile credited order", "order_id", order.ID, "credits", res.Credits)
	}
	return Outcome{Order: order, Settlement: res, Err: err}
}

// Sweep runs one synchronous reconciliation pass over the current stale
// orders and returns one outcome per order.
func (rc *Reconciler) Sweep(ctx context.Context) ([]Outcome, error) {
	list, err := rc.orders.StaleOrders(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan model.Order, len(list))
	for _, order := range list {
		ch <- order
	}
	close(ch)

	out := make(chan Outcome, len(list))
	var wg sync.WaitGroup
	for i := 0; i < rc.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rc.UpdateOrders(ctx, ch, out)
		}()
	}
	wg.Wait()
	close(out)

	outcomes := make([]Outcome, 0, len(list))
	for o := range out {
		outcomes = append(outcomes, o)
	}
	return outcomes, ctx.Err()
}
