package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/imagify/internal/errs"
	"github.com/and161185/imagify/internal/gateway"
	"github.com/and161185/imagify/internal/model"
	"github.com/and161185/imagify/internal/utils"
	"go.uber.org/zap"
)

// Store is the persistence the workflow relies on. CompareAndSetOrderStatus
// and AddCredits must be atomic at the storage layer; InTx runs fn so that
// both of its writes commit or neither does.
type Store interface {
	GetUserByID(ctx context.Context, id int) (model.User, error)

	GetOrder(ctx context.Context, orderID string) (model.Order, error)
	OrderExists(ctx context.Context, orderID string) (bool, error)
	InsertOrder(ctx context.Context, order model.Order) (bool, error)
	CompareAndSetOrderStatus(ctx context.Context, orderID string, expected, next model.OrderStatus, credits int64) (bool, error)
	ClaimStaleOrders(ctx context.Context, q StaleQuery) ([]model.Order, error)

	AddCredits(ctx context.Context, userID int, amount int64) (int64, error)

	InTx(ctx context.Context, fn func(tx Store) error) error
}

// StaleQuery selects CREATED orders for re-verification. Orders created in
// (CreatedAfter, CreatedBefore) qualify unless they were last checked at or
// after CheckedBefore. Never-checked orders come first, then the least
// recently checked, so a full batch of abandoned checkouts cannot hide newer
// orders.
type StaleQuery struct {
	CreatedBefore time.Time
	CreatedAfter  time.Time
	CheckedBefore time.Time
	Limit         int
}

type Gateway interface {
	CreateSession(ctx context.Context, req gateway.SessionRequest) (gateway.Session, error)
	GetStatus(ctx context.Context, orderID string) (gateway.OrderState, error)
}

type Catalog interface {
	Lookup(planID string) (model.Plan, bool)
}

type Options struct {
	Currency      string
	FrontendURL   string
	BackendURL    string
	DefaultPhone  string
	MaxIDAttempts int
	StaleAfter    time.Duration
	RecheckAfter  time.Duration
	Lookback      time.Duration
	BatchSize     int
}

type Service struct {
	store   Store
	gateway Gateway
	catalog Catalog
	opts    Options
	logger  *zap.SugaredLogger

	newID func() string
	now   func() time.Time
}

func NewService(store Store, gw Gateway, catalog Catalog, opts Options, logger *zap.SugaredLogger) *Service {
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	if opts.DefaultPhone == "" {
		opts.DefaultPhone = "9999999999"
	}
	if opts.MaxIDAttempts <= 0 {
		opts.MaxIDAttempts = 5
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = time.Minute
	}
	if opts.RecheckAfter <= 0 {
		opts.RecheckAfter = 5 * time.Minute
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 24 * time.Hour
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Service{
		store:   store,
		gateway: gw,
		catalog: catalog,
		opts:    opts,
		logger:  logger,
		newID:   utils.NewOrderID,
		now:     time.Now,
	}
}

// WithIDGenerator replaces the order id source. Used by tests and tools that
// need deterministic ids.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.newID = gen
	return s
}

func (s *Service) CreateOrder(ctx context.Context, userID int, planID string) (model.Checkout, error) {
	plan, ok := s.catalog.Lookup(planID)
	if !ok {
		return model.Checkout{}, errs.ErrInvalidPlan
	}

	var (
		user     model.User
		haveUser bool
		order    model.Order
		placed   bool
	)
	for attempt := 1; attempt <= s.opts.MaxIDAttempts && !placed; attempt++ {
		candidate := s.newID()

		exists, err := s.store.OrderExists(ctx, candidate)
		if err != nil {
			return model.Checkout{}, fmt.Errorf("check order id: %w", err)
		}
		if exists {
			s.logger.Warnw("order id collision", "order_id", candidate, "attempt", attempt)
			continue
		}

		if !haveUser {
			user, err = s.store.GetUserByID(ctx, userID)
			if err != nil {
				return model.Checkout{}, err
			}
			haveUser = true
		}

		order = model.Order{
			ID:        candidate,
			UserID:    user.ID,
			PlanID:    plan.ID,
			Amount:    plan.Price,
			Currency:  s.opts.Currency,
			Status:    model.Created,
			CreatedAt: s.now().UTC(),
		}
		inserted, err := s.store.InsertOrder(ctx, order)
		if err != nil {
			return model.Checkout{}, fmt.Errorf("insert order: %w", err)
		}
		if !inserted {
			s.logger.Warnw("order id taken between check and insert", "order_id", candidate, "attempt", attempt)
			continue
		}
		placed = true
	}
	if !placed {
		return model.Checkout{}, errs.ErrOrderIDConflict
	}

	phone := user.Phone
	if phone == "" {
		phone = s.opts.DefaultPhone
	}
	session, err := s.gateway.CreateSession(ctx, gateway.SessionRequest{
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
		Customer: gateway.Customer{
			ID:    strconv.Itoa(user.ID),
			Email: user.Email,
			Phone: phone,
			Name:  user.Name,
		},
		ReturnURL: strings.TrimRight(s.opts.FrontendURL, "/") + "/buy?order_id=" + order.ID,
		NotifyURL: strings.TrimRight(s.opts.BackendURL, "/") + "/api/users/webhook",
	})
	if err != nil {
		// The local order stays CREATED. The gateway never saw it, so any
		// later verification reports it unpaid and it is never credited.
		s.logger.Warnw("gateway session failed, order left in CREATED",
			"order_id", order.ID, "user_id", user.ID, "error", err)
		return model.Checkout{}, err
	}

	s.logger.Infow("order created", "order_id", order.ID, "user_id", user.ID, "plan", plan.ID, "amount", order.Amount.String())

	return model.Checkout{
		OrderID:          order.ID,
		PaymentSessionID: session.PaymentSessionID,
		PaymentLink:      session.PaymentLink,
		Amount:           order.Amount,
		Currency:         order.Currency,
	}, nil
}

// VerifyAndSettle asks the gateway for the order status and credits the
// owner exactly once. Safe to call any number of times, concurrently.
func (s *Service) VerifyAndSettle(ctx context.Context, orderID string) (model.Settlement, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return model.Settlement{}, err
	}

	if order.Status == model.Paid {
		return s.settled(ctx, order)
	}

	state, err := s.gateway.GetStatus(ctx, orderID)
	if err != nil {
		return model.Settlement{}, err
	}

	if state.Status != gateway.StatusPaid {
		return model.Settlement{
			OrderID:       order.ID,
			Status:        order.Status,
			GatewayStatus: string(state.Status),
		}, nil
	}

	// Credits come from the catalog at settlement time, not from the order.
	plan, ok := s.catalog.Lookup(order.PlanID)
	if !ok {
		s.logger.Errorw("paid order references unknown plan", "order_id", order.ID, "plan", order.PlanID)
		return model.Settlement{}, fmt.Errorf("settle order %s: %w", order.ID, errs.ErrInvalidPlan)
	}

	var (
		won     bool
		balance int64
	)
	err = s.store.InTx(ctx, func(tx Store) error {
		var err error
		won, err = tx.CompareAndSetOrderStatus(ctx, order.ID, model.Created, model.Paid, plan.Credits)
		if err != nil || !won {
			return err
		}
		balance, err = tx.AddCredits(ctx, order.UserID, plan.Credits)
		return err
	})
	if err != nil {
		return model.Settlement{}, fmt.Errorf("settle order %s: %w", order.ID, err)
	}

	if !won {
		s.logger.Infow("order settled by a concurrent attempt", "order_id", order.ID)
		current, err := s.store.GetOrder(ctx, order.ID)
		if err != nil {
			return model.Settlement{}, err
		}
		return s.settled(ctx, current)
	}

	s.logger.Infow("order settled", "order_id", order.ID, "user_id", order.UserID, "credits", plan.Credits, "balance", balance)

	return model.Settlement{
		OrderID:       order.ID,
		Status:        model.Paid,
		Paid:          true,
		Credited:      true,
		Credits:       plan.Credits,
		Balance:       balance,
		GatewayStatus: string(state.Status),
	}, nil
}

func (s *Service) settled(ctx context.Context, order model.Order) (model.Settlement, error) {
	user, err := s.store.GetUserByID(ctx, order.UserID)
	if err != nil {
		return model.Settlement{}, fmt.Errorf("load owner of order %s: %w", order.ID, err)
	}
	return model.Settlement{
		OrderID: order.ID,
		Status:  model.Paid,
		Paid:    true,
		Credits: order.Credits,
		Balance: user.CreditBalance,
	}, nil
}

// StaleOrders claims CREATED orders old enough that the client-driven
// verification has probably been missed. Claimed orders are stamped as
// checked and are not returned again until RecheckAfter has passed.
func (s *Service) StaleOrders(ctx context.Context) ([]model.Order, error) {
	now := s.now().UTC()
	list, err := s.store.ClaimStaleOrders(ctx, StaleQuery{
		CreatedBefore: now.Add(-s.opts.StaleAfter),
		CreatedAfter:  now.Add(-s.opts.Lookback),
		CheckedBefore: now.Add(-s.opts.RecheckAfter),
		Limit:         s.opts.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("claim stale orders: %w", err)
	}
	return list, nil
}

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	return errors.Is(err, errs.ErrGatewayUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}
