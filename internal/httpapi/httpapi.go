package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"go.uber.org/zap"

	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/service"
	"salesdesk/backend/internal/store"
)

type Options struct {
	// AllowedOrigins lists the browser origins allowed by CORS. "*" allows any.
	AllowedOrigins []string
	LimiterStore   limiter.Store
	GlobalRate     limiter.Rate
	LoginRate      limiter.Rate
	TrustProxy     bool
}

type API struct {
	service     *service.Service
	auth        *AuthManager
	log         *zap.Logger
	origins     []string
	trustProxy  bool
	globalLimit *stdlib.Middleware
	loginLimit  *stdlib.Middleware
}

func New(svc *service.Service, auth *AuthManager, log *zap.Logger, opts Options) (*API, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &API{
		service:    svc,
		auth:       auth,
		log:        log,
		origins:    opts.AllowedOrigins,
		trustProxy: opts.TrustProxy,
	}

	limitStore := opts.LimiterStore
	if limitStore == nil {
		var err error
		if limitStore, err = NewLimiterStore(nil); err != nil {
			return nil, err
		}
	}
	if opts.GlobalRate.Limit <= 0 {
		opts.GlobalRate = DefaultGlobalRate
	}
	if opts.LoginRate.Limit <= 0 {
		opts.LoginRate = DefaultLoginRate
	}
	a.globalLimit = a.newRateLimit("global", limitStore, opts.GlobalRate)
	a.loginLimit = a.newRateLimit("login", limitStore, opts.LoginRate)
	return a, nil
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.Handle("POST /api/auth/login", a.loginLimit.Handler(http.HandlerFunc(a.handleLogin)))
	mux.HandleFunc("POST /api/auth/register", a.requireAuth(a.handleRegister, domain.RoleAdmin))
	mux.HandleFunc("GET /api/auth/me", a.requireAuth(a.handleMe))
	mux.HandleFunc("GET /api/users", a.requireAuth(a.handleListUsers, domain.RoleAdmin))

	mux.HandleFunc("GET /api/products", a.handleListProducts)
	mux.HandleFunc("GET /api/products/low-stock", a.handleLowStock)
	mux.HandleFunc("GET /api/products/{id}", a.handleGetProduct)
	mux.HandleFunc("POST /api/products", a.requireAuth(a.handleCreateProduct, domain.RoleAdmin))
	mux.HandleFunc("PUT /api/products/{id}", a.requireAuth(a.handleUpdateProduct, domain.RoleAdmin))
	mux.HandleFunc("DELETE /api/products/{id}", a.requireAuth(a.handleDeleteProduct, domain.RoleAdmin))
	mux.HandleFunc("POST /api/products/{id}/variants", a.requireAuth(a.handleAddVariant, domain.RoleAdmin))
	mux.HandleFunc("PUT /api/products/{id}/variants/{variantId}", a.requireAuth(a.handleUpdateVariant, domain.RoleAdmin))
	mux.HandleFunc("DELETE /api/products/{id}/variants/{variantId}", a.requireAuth(a.handleDeleteVariant, domain.RoleAdmin))
	mux.HandleFunc("POST /api/products/{id}/variants/{variantId}/restock", a.requireAuth(a.handleRestock, domain.RoleAdmin))

	mux.HandleFunc("POST /api/sales", a.requireAuth(a.handleCreateSale))
	mux.HandleFunc("GET /api/sales", a.requireAuth(a.handleListSales))
	mux.HandleFunc("GET /api/sales/{id}", a.requireAuth(a.handleGetSale))

	mux.HandleFunc("GET /api/debts", a.requireAuth(a.handleListDebts))
	mux.HandleFunc("POST /api/debts", a.requireAuth(a.handleCreateDebt))
	mux.HandleFunc("PATCH /api/debts/{id}/status", a.requireAuth(a.handleDebtStatus))

	mux.HandleFunc("GET /api/analytics", a.requireAuth(a.handleDashboard))
	mux.HandleFunc("GET /api/analytics/report", a.requireAuth(a.handleAnalyticsReport))

	return a.withMiddleware(a.globalLimit.Handler(mux))
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !slices.Contains(roles, actor.Role) {
			a.writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		if origin := a.allowOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(startedAt)),
		)
	})
}

func (a *API) allowOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	for _, allowed := range a.origins {
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return origin
		}
	}
	return ""
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// writeServiceError maps store sentinels to status codes.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidInput), errors.Is(err, store.ErrInsufficientStock):
		a.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrNotFound):
		a.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrForbidden):
		a.writeError(w, http.StatusForbidden, err)
	case errors.Is(err, store.ErrConflict):
		a.writeError(w, http.StatusConflict, err)
	default:
		a.writeError(w, http.StatusInternalServerError, err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx causes stay in the log; clients only get a generic message.
	msg := err.Error()
	if status >= 500 {
		a.log.Error("internal error", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"message": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
