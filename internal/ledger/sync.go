package ledger

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jhalvorsen/ledgerview/internal/domain"
	"github.com/jhalvorsen/ledgerview/internal/infra/cache"
	"github.com/jhalvorsen/ledgerview/internal/infra/observability"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// API is the slice of the transport the sync core depends on.
type API interface {
	ListEntries(ctx context.Context, query url.Values, token string) (*domain.EntryPage, error)
	GetSummary(ctx context.Context, query url.Values, token string) (*domain.Summary, error)
	GetTrend(ctx context.Context, months int, token string) ([]domain.TrendPoint, error)
	GetDashboard(ctx context.Context, trendMonths, recentSize int, token string) (*domain.Dashboard, error)
	CreateExpense(ctx context.Context, req *domain.CreateExpenseRequest, token string) (*domain.Entry, error)
	CreateIncome(ctx context.Context, req *domain.CreateIncomeRequest, token string) (*domain.Entry, error)
	DeleteEntry(ctx context.Context, id domain.ID, token string) error
}

// Credentials is the slice of the session manager the sync core sees:
// the current bearer token, and the invalidation hook for 401/403.
type Credentials interface {
	Token() string
	Invalidate()
}

// View is the renderable state. It always reflects the most recently
// completed fetch for the most recently requested queries; Entries and
// Summary are replaced together, never mixed across cycles.
type View struct {
	Entries []domain.Entry
	Summary domain.Summary
	Loading bool
	Err     string
}

// ExpenseForm holds the add-expense inputs between submissions.
type ExpenseForm struct {
	Description string
	Category    string
	Amount      string
	Date        string
}

// IncomeForm holds the add-income inputs between submissions.
type IncomeForm struct {
	Description string
	Source      string
	Amount      string
	Date        string
}

// Sync keeps the view consistent with the filter selection and the
// session credential, and owns the mutation operations. All view access
// goes through the mutex; fetches themselves run outside it.
type Sync struct {
	api     API
	creds   Credentials
	filters *FilterState
	metrics *observability.Metrics
	logger  *zap.Logger

	dashCache  *cache.InMemory[*domain.Dashboard]
	trendCache *cache.InMemory[[]domain.TrendPoint]

	mu      sync.Mutex
	seq     uint64
	view    View
	expense ExpenseForm
	income  IncomeForm
}

// NewSync creates the sync core. cacheTTL bounds how stale dashboard
// and trend reads may get before they are refetched.
func NewSync(api API, creds Credentials, filters *FilterState, metrics *observability.Metrics, logger *zap.Logger, cacheTTL time.Duration) *Sync {
	today := time.Now().Format("2006-01-02")
	return &Sync{
		api:        api,
		creds:      creds,
		filters:    filters,
		metrics:    metrics,
		logger:     logger,
		dashCache:  cache.New[*domain.Dashboard](cacheTTL),
		trendCache: cache.New[[]domain.TrendPoint](cacheTTL),
		expense:    ExpenseForm{Category: domain.CategoryPersonal, Date: today},
		income:     IncomeForm{Source: domain.SourceSalary, Date: today},
	}
}

// Close ends the background janitors of the derived-view caches.
func (s *Sync) Close() {
	s.dashCache.Stop()
	s.trendCache.Stop()
}

// View returns a copy of the current view state.
func (s *Sync) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.view
	v.Entries = append([]domain.Entry(nil), s.view.Entries...)
	return v
}

// Refresh fetches the entry list and the summary concurrently and
// applies both to the view atomically. Each call supersedes any cycle
// still in flight: a superseded cycle's result is discarded no matter
// when it lands (last-request-wins, not last-response-wins).
func (s *Sync) Refresh(ctx context.Context) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	sel := s.filters.Selection()
	token := s.creds.Token()
	s.view.Loading = true
	s.view.Err = ""
	s.mu.Unlock()

	listQuery := ListQuery(sel)
	summaryQuery := SummaryQuery(sel)

	var (
		page    *domain.EntryPage
		summary *domain.Summary
		listErr error
		sumErr  error
	)
	var g errgroup.Group
	g.Go(func() error {
		page, listErr = s.api.ListEntries(ctx, listQuery, token)
		return nil
	})
	g.Go(func() error {
		summary, sumErr = s.api.GetSummary(ctx, summaryQuery, token)
		return nil
	})
	_ = g.Wait()

	s.mu.Lock()

	if seq != s.seq {
		latest := s.seq
		s.mu.Unlock()
		s.metrics.IncrStaleDrop()
		s.logger.Debug("refresh superseded, dropping result",
			zap.Uint64("seq", seq),
			zap.Uint64("latest", latest),
		)
		return
	}
	s.view.Loading = false

	if err := pickError(listErr, sumErr); err != nil {
		var unauthorized *domain.ErrUnauthorized
		if errors.As(err, &unauthorized) {
			// Session event, not a display error: the credential is dead
			// and the caller will re-route to login. Keep the stale view.
			// Invalidate fires the credential-change callback, which
			// re-enters this mutex through OnCredentialChanged, so the
			// lock must be released first.
			s.mu.Unlock()
			s.logger.Warn("refresh: credential rejected, invalidating session",
				zap.Int("status", unauthorized.Status),
			)
			s.creds.Invalidate()
			return
		}
		// Stale-but-valid data beats a blank screen.
		s.view.Err = err.Error()
		s.mu.Unlock()
		s.logger.Warn("refresh failed", zap.Error(err))
		return
	}

	if page != nil {
		s.view.Entries = page.Content
	} else {
		s.view.Entries = nil
	}
	if summary != nil {
		s.view.Summary = *summary
	} else {
		s.view.Summary = domain.Summary{}
	}
	s.mu.Unlock()
}

// pickError prefers the authorization failure so a concurrent transient
// error on the sibling fetch cannot mask a dead credential.
func pickError(errs ...error) error {
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		var unauthorized *domain.ErrUnauthorized
		if errors.As(err, &unauthorized) {
			return err
		}
		if first == nil {
			first = err
		}
	}
	return first
}

// OnFilterChanged is the explicit event for a selection change: the
// derived queries are stale, so refetch.
func (s *Sync) OnFilterChanged(ctx context.Context) {
	s.Refresh(ctx)
}

// OnCredentialChanged supersedes any in-flight cycle (its responses
// belong to the old credential), drops cached derived views, and
// refetches under the new credential.
func (s *Sync) OnCredentialChanged(ctx context.Context) {
	s.mu.Lock()
	s.seq++
	s.mu.Unlock()
	s.dashCache.Flush()
	s.trendCache.Flush()
	s.Refresh(ctx)
}

// ExpenseForm returns a copy of the pending add-expense inputs.
func (s *Sync) ExpenseForm() ExpenseForm {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expense
}

// SetExpenseForm replaces the pending add-expense inputs.
func (s *Sync) SetExpenseForm(form ExpenseForm) {
	s.mu.Lock()
	s.expense = form
	s.mu.Unlock()
}

// IncomeForm returns a copy of the pending add-income inputs.
func (s *Sync) IncomeForm() IncomeForm {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.income
}

// SetIncomeForm replaces the pending add-income inputs.
func (s *Sync) SetIncomeForm(form IncomeForm) {
	s.mu.Lock()
	s.income = form
	s.mu.Unlock()
}

// AddExpense submits the pending expense form. On success the
// description and amount are cleared (category and date are sticky) and
// the view is refreshed with the *current* queries. On failure the form
// is kept intact so nothing has to be retyped.
func (s *Sync) AddExpense(ctx context.Context) error {
	s.mu.Lock()
	form := s.expense
	s.view.Err = ""
	s.mu.Unlock()

	// The server is authoritative on validation; only amount presence is
	// checked here because an empty amount can never succeed.
	if strings.TrimSpace(form.Amount) == "" {
		return s.mutationFailed(&domain.ErrValidation{Message: "Expense amount is required"})
	}

	_, err := s.api.CreateExpense(ctx, &domain.CreateExpenseRequest{
		Description: form.Description,
		Category:    form.Category,
		Amount:      form.Amount,
		Date:        form.Date,
	}, s.creds.Token())
	if err != nil {
		return s.mutationFailed(err)
	}

	s.mu.Lock()
	s.expense.Description = ""
	s.expense.Amount = ""
	s.mu.Unlock()

	s.flushDerived()
	s.Refresh(ctx)
	return nil
}

// AddIncome submits the pending income form; behavior mirrors AddExpense.
func (s *Sync) AddIncome(ctx context.Context) error {
	s.mu.Lock()
	form := s.income
	s.view.Err = ""
	s.mu.Unlock()

	if strings.TrimSpace(form.Amount) == "" {
		return s.mutationFailed(&domain.ErrValidation{Message: "Income amount is required"})
	}

	_, err := s.api.CreateIncome(ctx, &domain.CreateIncomeRequest{
		Description: form.Description,
		Source:      form.Source,
		Amount:      form.Amount,
		Date:        form.Date,
	}, s.creds.Token())
	if err != nil {
		return s.mutationFailed(err)
	}

	s.mu.Lock()
	s.income.Description = ""
	s.income.Amount = ""
	s.mu.Unlock()

	s.flushDerived()
	s.Refresh(ctx)
	return nil
}

// RemoveEntry deletes an entry. On failure the entry stays visible: the
// delete did not happen server-side, so the list must keep showing it.
func (s *Sync) RemoveEntry(ctx context.Context, id domain.ID) error {
	s.mu.Lock()
	s.view.Err = ""
	s.mu.Unlock()

	if err := s.api.DeleteEntry(ctx, id, s.creds.Token()); err != nil {
		return s.mutationFailed(err)
	}

	s.flushDerived()
	s.Refresh(ctx)
	return nil
}

// Dashboard returns the current-month rollup, served from cache inside
// the TTL window.
func (s *Sync) Dashboard(ctx context.Context, trendMonths, recentSize int) (*domain.Dashboard, error) {
	key := "dashboard:" + strconv.Itoa(trendMonths) + ":" + strconv.Itoa(recentSize)
	if cached, ok := s.dashCache.Get(key); ok {
		s.metrics.IncrCacheHit("dashboard")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("dashboard")

	dashboard, err := s.api.GetDashboard(ctx, trendMonths, recentSize, s.creds.Token())
	if err != nil {
		var unauthorized *domain.ErrUnauthorized
		if errors.As(err, &unauthorized) {
			s.creds.Invalidate()
		}
		return nil, err
	}
	s.dashCache.Set(key, dashboard)
	return dashboard, nil
}

// Trend returns the month-by-month trend, served from cache inside the
// TTL window.
func (s *Sync) Trend(ctx context.Context, months int) ([]domain.TrendPoint, error) {
	key := "trend:" + strconv.Itoa(months)
	if cached, ok := s.trendCache.Get(key); ok {
		s.metrics.IncrCacheHit("trend")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("trend")

	trend, err := s.api.GetTrend(ctx, months, s.creds.Token())
	if err != nil {
		var unauthorized *domain.ErrUnauthorized
		if errors.As(err, &unauthorized) {
			s.creds.Invalidate()
		}
		return nil, err
	}
	s.trendCache.Set(key, trend)
	return trend, nil
}

// mutationFailed routes a mutation error: auth failures invalidate the
// session silently, everything else lands in the view's error field.
func (s *Sync) mutationFailed(err error) error {
	var unauthorized *domain.ErrUnauthorized
	if errors.As(err, &unauthorized) {
		s.creds.Invalidate()
		return err
	}
	s.mu.Lock()
	s.view.Err = err.Error()
	s.mu.Unlock()
	return err
}

// flushDerived drops cached dashboard/trend data after a mutation so
// derived views refetch.
func (s *Sync) flushDerived() {
	s.dashCache.Flush()
	s.trendCache.Flush()
}
