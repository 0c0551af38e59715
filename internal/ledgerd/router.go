package ledgerd

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/jhalvorsen/ledgerview/internal/domain"
	"github.com/jhalvorsen/ledgerview/internal/infra/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("ledgerd")

// NewRouter creates the HTTP router with all routes and middleware.
// The surface mirrors the production ledger API the client targets.
func NewRouter(store *Store, auth *Authenticator, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	r.Get("/healthz", healthzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// Public auth routes
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", signupHandler(store, logger))
		r.Post("/login", loginHandler(store, auth, logger))

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)
			r.Get("/me", meHandler(store, logger))
		})
	})

	// Ledger routes, all behind the bearer token
	r.Route("/api/ledger", func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Get("/entries", listEntriesHandler(store, logger))
		r.Get("/summary", summaryHandler(store, logger))
		r.Get("/trend", trendHandler(store, logger))
		r.Get("/dashboard", dashboardHandler(store, logger))
		r.Post("/expenses", createExpenseHandler(store, logger))
		r.Post("/incomes", createIncomeHandler(store, logger))
		r.Delete("/entries/{id}", deleteEntryHandler(store, logger))
	})

	return r
}

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ============================================================
// Auth
// ============================================================

func signupHandler(store *Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "POST /api/auth/signup")
		defer span.End()

		var req domain.SignupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if strings.TrimSpace(req.Username) == "" {
			writeError(w, http.StatusBadRequest, "Username is required")
			return
		}
		if _, err := mail.ParseAddress(req.Email); err != nil {
			writeError(w, http.StatusBadRequest, "A valid email is required")
			return
		}
		if len(req.Password) < 8 {
			writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
			return
		}

		hash, err := HashPassword(req.Password)
		if err != nil {
			handleStoreError(w, err, logger)
			return
		}
		user, err := store.CreateUser(strings.TrimSpace(req.Username), strings.ToLower(req.Email), hash)
		if err != nil {
			handleStoreError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	}
}

func loginHandler(store *Store, auth *Authenticator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "POST /api/auth/login")
		defer span.End()

		var req domain.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		user, err := store.FindUserByLogin(strings.TrimSpace(req.UsernameOrEmail))
		if err != nil {
			var notFound *domain.ErrNotFound
			if errors.As(err, &notFound) {
				// Same response for unknown account and wrong password.
				writeError(w, http.StatusUnauthorized, "Invalid credentials")
				return
			}
			handleStoreError(w, err, logger)
			return
		}
		if !CheckPassword(user.PassHash, req.Password) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		token, err := auth.IssueToken(user.ID)
		if err != nil {
			handleStoreError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.LoginResponse{
			Token: token,
			User: &domain.User{
				ID:       domain.ID(user.ID),
				Username: user.Username,
				Email:    user.Email,
			},
		})
	}
}

func meHandler(store *Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /api/auth/me")
		defer span.End()

		user, err := store.FindUserByID(userIDFrom(r.Context()))
		if err != nil {
			var notFound *domain.ErrNotFound
			if errors.As(err, &notFound) {
				// Token subject no longer exists, treat as a dead credential.
				writeError(w, http.StatusUnauthorized, "Unknown account")
				return
			}
			handleStoreError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// ============================================================
// Ledger
// ============================================================

func listEntriesHandler(store *Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /api/ledger/entries")
		defer span.End()

		filter, err := parseEntryFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		entries, err := store.ListEntries(userIDFrom(r.Context()), filter)
		if err != nil {
			handleStoreError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.EntryPage{Content: entries})
	}
}

func summaryHandler(store *Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /api/ledger/summary")
		defer span.End()

		filter, err := parseEntryFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		summary, err := store.Summary(userIDFrom(r.Context()), filter)
		if err != nil {
			handleStoreError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func trendHandler(store *Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /api/ledger/trend")
		defer span.End()

		months := intQuery(r, "months", 6)
		trend, err := store.Trend(userIDFrom(r.Context()), months)
		if err != nil {
			handleStoreError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, trend)
	}
}

func dashboardHandler(store *Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /api/ledger/dashboard")
		defer span.End()

		trendMonths := intQuery(r, "trendMonths", 6)
		recentSize := intQuery(r, "recentSize", 6)
		dashboard, err := store.Dashboard(userIDFrom(r.Context()), trendMonths, recentSize)
		if err != nil {
			handleStoreError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, dashboard)
	}
}

func createExpenseHandler(store *Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "POST /api/ledger/expenses")
		defer span.End()

		var req domain.CreateExpenseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if strings.TrimSpace(req.Description) == "" {
			writeError(w, http.StatusBadRequest, "Expense description is required")
			return
		}
		if !contains(domain.ExpenseCategories, req.Category) {
			writeError(w, http.StatusBadRequest, "Expense category must be one of "+strings.Join(domain.ExpenseCategories, ", "))
			return
		}
		amount, err := parseAmount(req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Expense amount must be a positive number")
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Expense date must be YYYY-MM-DD")
			return
		}

		entry, err := store.InsertEntry(userIDFrom(r.Context()), domain.KindExpense,
			strings.TrimSpace(req.Description), req.Category, "", amount, date)
		if err != nil {
			handleStoreError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	}
}

func createIncomeHandler(store *Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "POST /api/ledger/incomes")
		defer span.End()

		var req domain.CreateIncomeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if strings.TrimSpace(req.Description) == "" {
			writeError(w, http.StatusBadRequest, "Income description is required")
			return
		}
		if !contains(domain.IncomeSources, req.Source) {
			writeError(w, http.StatusBadRequest, "Income source must be one of "+strings.Join(domain.IncomeSources, ", "))
			return
		}
		amount, err := parseAmount(req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Income amount must be a positive number")
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Income date must be YYYY-MM-DD")
			return
		}

		entry, err := store.InsertEntry(userIDFrom(r.Context()), domain.KindIncome,
			strings.TrimSpace(req.Description), "", req.Source, amount, date)
		if err != nil {
			handleStoreError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	}
}

func deleteEntryHandler(store *Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "DELETE /api/ledger/entries/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		if err := store.DeleteEntry(userIDFrom(r.Context()), id); err != nil {
			handleStoreError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ============================================================
// Request parsing
// ============================================================

func parseEntryFilter(r *http.Request) (EntryFilter, error) {
	q := r.URL.Query()
	f := EntryFilter{
		Type:     q.Get("type"),
		Category: q.Get("category"),
		Source:   q.Get("source"),
		DateFrom: q.Get("dateFrom"),
		DateTo:   q.Get("dateTo"),
		SortBy:   q.Get("sortBy"),
		SortDir:  q.Get("sortDir"),
		Page:     intQuery(r, "page", 0),
		Size:     intQuery(r, "size", 50),
	}

	if f.Type != "" && f.Type != string(domain.KindExpense) && f.Type != string(domain.KindIncome) {
		return f, errors.New("type must be expense or income")
	}
	if v := q.Get("minAmount"); v != "" {
		amount, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, errors.New("minAmount must be a number")
		}
		f.MinAmount, f.HasMin = amount, true
	}
	if v := q.Get("maxAmount"); v != "" {
		amount, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, errors.New("maxAmount must be a number")
		}
		f.MaxAmount, f.HasMax = amount, true
	}
	return f, nil
}

func intQuery(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func parseAmount(raw string) (float64, error) {
	amount, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || amount <= 0 {
		return 0, errors.New("invalid amount")
	}
	return amount, nil
}

func parseDate(raw string) (string, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return t.Format("2006-01-02"), nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
