package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/and161185/imagify/internal/auth"
	"github.com/and161185/imagify/internal/config"
	"github.com/and161185/imagify/internal/deps"
	"github.com/and161185/imagify/internal/errs"
	"github.com/and161185/imagify/internal/gateway"
	"github.com/and161185/imagify/internal/middleware"
	"github.com/and161185/imagify/internal/model"
	"github.com/and161185/imagify/internal/plans"
	"github.com/and161185/imagify/internal/utils"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

const maxWebhookBody = 1 << 20

type Storage interface {
	CreateUser(ctx context.Context, user model.User, passwordHash string) (int, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, string, error)
	GetUserByID(ctx context.Context, id int) (model.User, error)
}

type OrderService interface {
	CreateOrder(ctx context.Context, userID int, planID string) (model.Checkout, error)
	VerifyAndSettle(ctx context.Context, orderID string) (model.Settlement, error)
	HandleWebhook(ctx context.Context, event model.WebhookEvent) (model.Settlement, error)
	StaleOrders(ctx context.Context) ([]model.Order, error)
}

type Server struct {
	storage    Storage
	orders     OrderService
	catalog    *plans.Catalog
	config     *config.Config
	deps       *deps.Deps
	reconciler *Reconciler
}

func NewServer(storage Storage, orders OrderService, catalog *plans.Catalog, config *config.Config, deps *deps.Deps) *Server {
	return &Server{
		storage:    storage,
		orders:     orders,
		catalog:    catalog,
		config:     config,
		deps:       deps,
		reconciler: NewReconciler(orders, config.Reconcile, deps.Logger),
	}
}

func (srv *Server) buildRouter() http.Handler {
	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Recoverer)
	router.Use(chiMiddleware.StripSlashes)
	router.Use(middleware.CORSMiddleware([]string{srv.config.FrontendURL}))
	router.Use(middleware.LogMiddleware(srv.deps.Logger, "/register", "/login"))
	router.Use(middleware.DecompressMiddleware)
	router.Use(middleware.CompressMiddleware(srv.deps.Logger))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Route("/api/users", func(r chi.Router) {
		r.Post("/register", srv.RegisterHandler)
		r.Post("/login", srv.LoginHandler)
		r.Get("/plans", srv.PlansHandler)
		r.Get("/verify-payment", srv.VerifyPaymentHandler)
		r.Post("/webhook", srv.WebhookHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(srv.storage, srv.deps.TokenManager))

			r.Get("/credits", srv.CreditsHandler)
			r.Get("/profile", srv.ProfileHandler)
			r.Post("/pay", srv.PayHandler)
		})
	})

	return router
}

func (srv *Server) Run(ctx context.Context) error {
	router := srv.buildRouter()

	server := &http.Server{
		Addr:              srv.config.RunAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		srv.deps.Logger.Infow("server started", "address", srv.config.RunAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	srv.reconciler.Start(ctx)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := server.Shutdown(shutdownCtx)
	srv.reconciler.Wait()
	return err
}

type userView struct {
	Name          string `json:"name"`
	Email         string `json:"email,omitempty"`
	CreditBalance *int64 `json:"creditBalance,omitempty"`
}

type authResponse struct {
	Success bool     `json:"success"`
	Token   string   `json:"token"`
	User    userView `json:"user"`
}

func (srv *Server) issueToken(w http.ResponseWriter, user model.User) {
	token, err := srv.deps.TokenManager.GenerateToken(user.ID)
	if err != nil {
		srv.deps.Logger.Errorw("generate token", "user_id", user.ID, "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "token error")
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	middleware.WriteJSON(w, http.StatusOK, authResponse{Success: true, Token: token, User: userView{Name: user.Name}})
}

func (srv *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "bad request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if strings.TrimSpace(req.Name) == "" || req.Email == "" || req.Password == "" {
		middleware.WriteError(w, http.StatusBadRequest, "All fields are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, "hash error")
		return
	}

	user := model.User{Name: strings.TrimSpace(req.Name), Email: req.Email}
	user.ID, err = srv.storage.CreateUser(r.Context(), user, hash)
	if err != nil {
		if errors.Is(err, errs.ErrEmailAlreadyExists) {
			middleware.WriteError(w, http.StatusConflict, "Email already registered")
			return
		}
		srv.deps.Logger.Errorw("create user", "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "db error")
		return
	}

	srv.issueToken(w, user)
}

func (srv *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "bad request")
		return
	}
	creds.Email = strings.TrimSpace(strings.ToLower(creds.Email))
	if creds.Email == "" || creds.Password == "" {
		middleware.WriteError(w, http.StatusBadRequest, "email and password required")
		return
	}

	user, hash, err := srv.storage.GetUserByEmail(r.Context(), creds.Email)
	if err != nil {
		if errors.Is(err, errs.ErrUserNotFound) {
			middleware.WriteError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		srv.deps.Logger.Errorw("get user by email", "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "db error")
		return
	}

	if err := auth.CheckPassword(hash, creds.Password); err != nil {
		middleware.WriteError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	srv.issueToken(w, user)
}

func (srv *Server) CreditsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"credits": user.CreditBalance,
		"user":    userView{Name: user.Name},
	})
}

func (srv *Server) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	balance := user.CreditBalance
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    userView{Name: user.Name, Email: user.Email, CreditBalance: &balance},
	})
}

type planView struct {
	ID          string      `json:"id"`
	Price       json.Number `json:"price"`
	Credits     int64       `json:"credits"`
	Description string      `json:"desc"`
}

func (srv *Server) PlansHandler(w http.ResponseWriter, r *http.Request) {
	list := srv.catalog.List()
	views := make([]planView, 0, len(list))
	for _, p := range list {
		views = append(views, planView{
			ID:          p.ID,
			Price:       json.Number(p.Price.String()),
			Credits:     p.Credits,
			Description: p.Description,
		})
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "plans": views})
}

type checkoutView struct {
	OrderID          string      `json:"order_id"`
	PaymentSessionID string      `json:"payment_session_id"`
	OrderAmount      json.Number `json:"order_amount"`
	OrderCurrency    string      `json:"order_currency"`
	PaymentLink      string      `json:"payment_link,omitempty"`
}

func (srv *Server) PayHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req model.PayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "bad request")
		return
	}

	checkout, err := srv.orders.CreateOrder(r.Context(), user.ID, req.PlanID)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrInvalidPlan):
			middleware.WriteError(w, http.StatusBadRequest, "Invalid plan selected")
		case errors.Is(err, errs.ErrUserNotFound):
			middleware.WriteError(w, http.StatusNotFound, "User not found")
		case errors.Is(err, errs.ErrOrderIDConflict):
			middleware.WriteError(w, http.StatusConflict, "Please try again (order id conflict)")
		case errors.Is(err, errs.ErrGatewayUnavailable), errors.Is(err, errs.ErrGatewayRejected):
			middleware.WriteError(w, http.StatusBadGateway, "Payment gateway error")
		default:
			srv.deps.Logger.Errorw("create order", "user_id", user.ID, "error", err)
			middleware.WriteError(w, http.StatusInternalServerError, "create order failed")
		}
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"order": checkoutView{
			OrderID:          checkout.OrderID,
			PaymentSessionID: checkout.PaymentSessionID,
			OrderAmount:      json.Number(checkout.Amount.String()),
			OrderCurrency:    checkout.Currency,
			PaymentLink:      checkout.PaymentLink,
		},
	})
}

func (srv *Server) VerifyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "order_id is required")
		return
	}
	if !utils.IsValidOrderID(orderID) {
		middleware.WriteError(w, http.StatusNotFound, "Order not found")
		return
	}

	res, err := srv.orders.VerifyAndSettle(r.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrOrderNotFound):
			middleware.WriteError(w, http.StatusNotFound, "Order not found")
		case errors.Is(err, errs.ErrGatewayUnavailable), errors.Is(err, errs.ErrGatewayRejected):
			middleware.WriteError(w, http.StatusBadGateway, "Verification failed")
		default:
			srv.deps.Logger.Errorw("verify payment", "order_id", orderID, "error", err)
			middleware.WriteError(w, http.StatusInternalServerError, "Verification failed")
		}
		return
	}

	if !res.Paid {
		middleware.WriteJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Payment not completed"})
		return
	}

	message := "Payment verified successfully"
	if !res.Credited {
		message = "Order already processed"
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": message,
		"credits": res.Balance,
	})
}

func (srv *Server) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid webhook data")
		return
	}

	if srv.config.Gateway.VerifySignature {
		err := gateway.VerifySignature(srv.config.Gateway.SecretKey,
			r.Header.Get(gateway.TimestampHeader), body, r.Header.Get(gateway.SignatureHeader))
		if err != nil {
			srv.deps.Logger.Warnw("webhook signature rejected", "error", err)
			middleware.WriteError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	var event model.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid webhook data")
		return
	}

	if _, err := srv.orders.HandleWebhook(r.Context(), event); err != nil {
		if errors.Is(err, errs.ErrMalformedWebhook) {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid webhook data")
			return
		}
		// Any other failure is answered with 500 so the gateway redelivers;
		// settlement is idempotent.
		srv.deps.Logger.Errorw("webhook processing failed", "type", event.Type, "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "Webhook processing failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
