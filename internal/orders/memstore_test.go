package orders_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/and161185/imagify/internal/errs"
	"github.com/and161185/imagify/internal/gateway"
	"github.com/and161185/imagify/internal/model"
	"github.com/and161185/imagify/internal/orders"
)

// memStore keeps users and orders in maps. Every method takes the mutex, so
// CompareAndSetOrderStatus is atomic the same way the SQL UPDATE is.
type memStore struct {
	mu     sync.Mutex
	users  map[int]model.User
	orders map[string]model.Order
	// checked holds the last claim time per order id.
	checked map[string]time.Time
}

func newMemStore(users ...model.User) *memStore {
	s := &memStore{users: map[int]model.User{}, orders: map[string]model.Order{}, checked: map[string]time.Time{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *memStore) GetUserByID(_ context.Context, id int) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, errs.ErrUserNotFound
	}
	return u, nil
}

func (s *memStore) GetOrder(_ context.Context, orderID string) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return model.Order{}, errs.ErrOrderNotFound
	}
	return o, nil
}

func (s *memStore) OrderExists(_ context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.orders[orderID]
	return ok, nil
}

func (s *memStore) InsertOrder(_ context.Context, order model.Order) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; ok {
		return false, nil
	}
	s.orders[order.ID] = order
	return true, nil
}

func (s *memStore) CompareAndSetOrderStatus(_ context.Context, orderID string, expected, next model.OrderStatus, credits int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.Status != expected {
		return false, nil
	}
	o.Status = next
	o.Credits = credits
	now := time.Now()
	o.PaidAt = &now
	s.orders[orderID] = o
	return true, nil
}

func (s *memStore) ClaimStaleOrders(_ context.Context, q orders.StaleQuery) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []model.Order
	for _, o := range s.orders {
		if o.Status != model.Created || !o.CreatedAt.Before(q.CreatedBefore) || !o.CreatedAt.After(q.CreatedAfter) {
			continue
		}
		if at, ok := s.checked[o.ID]; ok && !at.Before(q.CheckedBefore) {
			continue
		}
		list = append(list, o)
	}
	sort.Slice(list, func(i, j int) bool {
		ci, iok := s.checked[list[i].ID]
		cj, jok := s.checked[list[j].ID]
		if iok != jok {
			return !iok
		}
		if iok && !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	if len(list) > q.Limit {
		list = list[:q.Limit]
	}
	now := time.Now()
	for _, o := range list {
		s.checked[o.ID] = now
	}
	return list, nil
}

// seed stores orders as they are, bypassing CreateOrder.
func (s *memStore) seed(list ...model.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range list {
		s.orders[o.ID] = o
	}
}

func (s *memStore) AddCredits(_ context.Context, userID int, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, errs.ErrUserNotFound
	}
	u.CreditBalance += amount
	s.users[userID] = u
	return u.CreditBalance, nil
}

// InTx has no rollback. Tests that need rollback use the postgres suite.
func (s *memStore) InTx(_ context.Context, fn func(tx orders.Store) error) error {
	return fn(s)
}

func (s *memStore) balance(userID int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID].CreditBalance
}

// stubGateway answers with a fixed status and counts calls.
type stubGateway struct {
	mu       sync.Mutex
	status   gateway.OrderStatus
	err      error
	sessions int
	checks   int
}

func (g *stubGateway) CreateSession(_ context.Context, req gateway.SessionRequest) (gateway.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions++
	if g.err != nil {
		return gateway.Session{}, g.err
	}
	return gateway.Session{
		CfOrderID:        "cf_" + req.OrderID,
		PaymentSessionID: "session_" + req.OrderID,
		Status:           gateway.StatusActive,
	}, nil
}

func (g *stubGateway) GetStatus(_ context.Context, orderID string) (gateway.OrderState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks++
	if g.err != nil {
		return gateway.OrderState{}, g.err
	}
	return gateway.OrderState{OrderID: orderID, Status: g.status}, nil
}

func (g *stubGateway) setStatus(status gateway.OrderStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = status
}
