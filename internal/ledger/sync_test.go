package ledger_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jhalvorsen/ledgerview/internal/domain"
	"github.com/jhalvorsen/ledgerview/internal/infra/observability"
	"github.com/jhalvorsen/ledgerview/internal/ledger"
	"github.com/jhalvorsen/ledgerview/internal/session"

	"go.uber.org/zap"
)

// --- Mocks ---

type mockAPI struct {
	mu            sync.Mutex
	listCalls     int
	createdExp    []*domain.CreateExpenseRequest
	createdInc    []*domain.CreateIncomeRequest
	deleted       []domain.ID
	trendCalls    int
	dashCalls     int

	listFn    func(call int, q url.Values) (*domain.EntryPage, error)
	summaryFn func(q url.Values) (*domain.Summary, error)
	expenseErr error
	incomeErr  error
	deleteErr  error
	trend      []domain.TrendPoint
	trendErr   error
	dashboard  *domain.Dashboard
	dashErr    error
}

func (m *mockAPI) ListEntries(_ context.Context, q url.Values, _ string) (*domain.EntryPage, error) {
	m.mu.Lock()
	m.listCalls++
	call := m.listCalls
	fn := m.listFn
	m.mu.Unlock()
	if fn != nil {
		return fn(call, q)
	}
	return &domain.EntryPage{}, nil
}

func (m *mockAPI) GetSummary(_ context.Context, q url.Values, _ string) (*domain.Summary, error) {
	if m.summaryFn != nil {
		return m.summaryFn(q)
	}
	return &domain.Summary{}, nil
}

func (m *mockAPI) GetTrend(_ context.Context, _ int, _ string) ([]domain.TrendPoint, error) {
	m.mu.Lock()
	m.trendCalls++
	m.mu.Unlock()
	return m.trend, m.trendErr
}

func (m *mockAPI) GetDashboard(_ context.Context, _, _ int, _ string) (*domain.Dashboard, error) {
	m.mu.Lock()
	m.dashCalls++
	m.mu.Unlock()
	return m.dashboard, m.dashErr
}

func (m *mockAPI) CreateExpense(_ context.Context, req *domain.CreateExpenseRequest, _ string) (*domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expenseErr != nil {
		return nil, m.expenseErr
	}
	m.createdExp = append(m.createdExp, req)
	return &domain.Entry{ID: "new"}, nil
}

func (m *mockAPI) CreateIncome(_ context.Context, req *domain.CreateIncomeRequest, _ string) (*domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incomeErr != nil {
		return nil, m.incomeErr
	}
	m.createdInc = append(m.createdInc, req)
	return &domain.Entry{ID: "new"}, nil
}

func (m *mockAPI) DeleteEntry(_ context.Context, id domain.ID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, id)
	return nil
}

type mockCreds struct {
	mu          sync.Mutex
	token       string
	invalidated int
}

func (m *mockCreds) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *mockCreds) Invalidate() {
	m.mu.Lock()
	m.invalidated++
	m.mu.Unlock()
}

func (m *mockCreds) invalidations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invalidated
}

// stubAuthAPI and memTokenStore let a real session.Manager run inside
// these tests without any transport.
type stubAuthAPI struct{}

func (stubAuthAPI) Login(_ context.Context, _ *domain.LoginRequest) (*domain.LoginResponse, error) {
	return nil, &domain.ErrTransient{Message: "not wired"}
}

func (stubAuthAPI) Signup(_ context.Context, _ *domain.SignupRequest) error { return nil }

func (stubAuthAPI) Me(_ context.Context, _ string) (*domain.User, error) { return nil, nil }

type memTokenStore struct {
	token string
}

func (s *memTokenStore) Load() (string, error) { return s.token, nil }
func (s *memTokenStore) Save(t string) error   { s.token = t; return nil }
func (s *memTokenStore) Clear() error          { s.token = ""; return nil }

func newTestSync(api *mockAPI, creds *mockCreds) *ledger.Sync {
	return ledger.NewSync(api, creds, ledger.NewFilterState(),
		observability.NewMetrics(), zap.NewNop(), time.Minute)
}

func summaryOf(income, expense, pnl string) *domain.Summary {
	i, e, p := domain.Decimal(income), domain.Decimal(expense), domain.Decimal(pnl)
	return &domain.Summary{TotalIncome: &i, TotalExpense: &e, PnL: &p}
}

// --- Tests ---

func TestRefresh_AppliesListAndSummaryTogether(t *testing.T) {
	api := &mockAPI{
		listFn: func(_ int, _ url.Values) (*domain.EntryPage, error) {
			return &domain.EntryPage{Content: []domain.Entry{{ID: "1", Description: "groceries"}}}, nil
		},
		summaryFn: func(_ url.Values) (*domain.Summary, error) {
			return summaryOf("100.00", "40.00", "60.00"), nil
		},
	}
	s := newTestSync(api, &mockCreds{token: "tok"})

	s.Refresh(context.Background())

	view := s.View()
	if view.Loading {
		t.Error("loading must be false after the cycle completes")
	}
	if view.Err != "" {
		t.Errorf("unexpected view error: %s", view.Err)
	}
	if len(view.Entries) != 1 || view.Entries[0].Description != "groceries" {
		t.Errorf("unexpected entries: %+v", view.Entries)
	}
	if view.Summary.PnL == nil || *view.Summary.PnL != "60.00" {
		t.Errorf("unexpected summary: %+v", view.Summary)
	}
}

func TestRefresh_SupersededCycleIsDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	api := &mockAPI{
		listFn: func(call int, _ url.Values) (*domain.EntryPage, error) {
			if call == 1 {
				close(started)
				<-release
				return &domain.EntryPage{Content: []domain.Entry{{ID: "stale"}}}, nil
			}
			return &domain.EntryPage{Content: []domain.Entry{{ID: "fresh"}}}, nil
		},
		summaryFn: func(_ url.Values) (*domain.Summary, error) {
			return summaryOf("1.00", "0.00", "1.00"), nil
		},
	}
	s := newTestSync(api, &mockCreds{token: "tok"})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Refresh(context.Background())
	}()
	<-started

	// Second refresh supersedes the blocked first one and completes.
	s.Refresh(context.Background())

	// Let the first cycle finish late; its result must be dropped.
	close(release)
	wg.Wait()

	view := s.View()
	if len(view.Entries) != 1 || view.Entries[0].ID != "fresh" {
		t.Errorf("late result overwrote the newer one: %+v", view.Entries)
	}
	if view.Loading {
		t.Error("loading must be false after the winning cycle completed")
	}
}

func TestRefresh_TransientErrorKeepsStaleData(t *testing.T) {
	api := &mockAPI{
		listFn: func(call int, _ url.Values) (*domain.EntryPage, error) {
			if call == 1 {
				return &domain.EntryPage{Content: []domain.Entry{{ID: "kept"}}}, nil
			}
			return nil, &domain.ErrTransient{Message: "ledger API unavailable"}
		},
	}
	s := newTestSync(api, &mockCreds{token: "tok"})

	s.Refresh(context.Background())
	s.Refresh(context.Background())

	view := s.View()
	if view.Err != "ledger API unavailable" {
		t.Errorf("expected transient error in view, got %q", view.Err)
	}
	if len(view.Entries) != 1 || view.Entries[0].ID != "kept" {
		t.Errorf("stale data must survive a failed refresh: %+v", view.Entries)
	}
}

func TestRefresh_UnauthorizedInvalidatesWithoutViewError(t *testing.T) {
	api := &mockAPI{
		listFn: func(call int, _ url.Values) (*domain.EntryPage, error) {
			if call == 1 {
				return &domain.EntryPage{Content: []domain.Entry{{ID: "old"}}}, nil
			}
			return nil, &domain.ErrUnauthorized{Status: 403}
		},
	}
	creds := &mockCreds{token: "tok"}
	s := newTestSync(api, creds)

	s.Refresh(context.Background())
	s.Refresh(context.Background())

	if creds.invalidations() != 1 {
		t.Errorf("expected 1 invalidation, got %d", creds.invalidations())
	}
	view := s.View()
	if view.Err != "" {
		t.Errorf("a dead credential is not a display error, got %q", view.Err)
	}
	if len(view.Entries) != 1 || view.Entries[0].ID != "old" {
		t.Errorf("view must be left untouched on invalidation: %+v", view.Entries)
	}
}

// The CLI wires the session change callback straight back into
// OnCredentialChanged, so invalidation re-enters the sync core on the
// same goroutine. A rejected credential must still let Refresh return.
func TestRefresh_UnauthorizedWithWiredSessionCompletes(t *testing.T) {
	api := &mockAPI{
		listFn: func(_ int, _ url.Values) (*domain.EntryPage, error) {
			return nil, &domain.ErrUnauthorized{Status: 403}
		},
	}
	sess := session.NewManager(stubAuthAPI{}, &memTokenStore{token: "tok"}, zap.NewNop())
	s := ledger.NewSync(api, sess, ledger.NewFilterState(),
		observability.NewMetrics(), zap.NewNop(), time.Minute)
	defer s.Close()

	ctx := context.Background()
	sess.OnChange(func() { s.OnCredentialChanged(ctx) })

	done := make(chan struct{})
	go func() {
		s.Refresh(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("refresh did not return after the credential was rejected")
	}

	if sess.IsAuthenticated() {
		t.Error("expected the session to be invalidated")
	}
	if view := s.View(); view.Err != "" {
		t.Errorf("a dead credential is not a display error, got %q", view.Err)
	}
}

func TestRefresh_UnauthorizedWinsOverSiblingError(t *testing.T) {
	api := &mockAPI{
		listFn: func(_ int, _ url.Values) (*domain.EntryPage, error) {
			return nil, &domain.ErrTransient{Message: "connection reset"}
		},
		summaryFn: func(_ url.Values) (*domain.Summary, error) {
			return nil, &domain.ErrUnauthorized{Status: 401}
		},
	}
	creds := &mockCreds{token: "tok"}
	s := newTestSync(api, creds)

	s.Refresh(context.Background())

	if creds.invalidations() != 1 {
		t.Errorf("unauthorized on either fetch must invalidate, got %d", creds.invalidations())
	}
	if view := s.View(); view.Err != "" {
		t.Errorf("transient sibling must not mask the auth failure, got %q", view.Err)
	}
}

func TestAddExpense_ClearsFormAndRefreshes(t *testing.T) {
	api := &mockAPI{}
	s := newTestSync(api, &mockCreds{token: "tok"})

	s.SetExpenseForm(ledger.ExpenseForm{
		Description: "coffee beans",
		Category:    domain.CategoryPersonal,
		Amount:      "18.90",
		Date:        "2026-08-27",
	})
	if err := s.AddExpense(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(api.createdExp) != 1 || api.createdExp[0].Description != "coffee beans" {
		t.Fatalf("unexpected create calls: %+v", api.createdExp)
	}
	form := s.ExpenseForm()
	if form.Description != "" || form.Amount != "" {
		t.Errorf("description and amount must clear after success: %+v", form)
	}
	if form.Category != domain.CategoryPersonal || form.Date != "2026-08-27" {
		t.Errorf("category and date must be sticky: %+v", form)
	}
	if api.listCalls == 0 {
		t.Error("a successful mutation must refresh the view")
	}
}

func TestAddExpense_MissingAmountFailsWithoutAPICall(t *testing.T) {
	api := &mockAPI{}
	s := newTestSync(api, &mockCreds{token: "tok"})

	s.SetExpenseForm(ledger.ExpenseForm{Description: "forgot the amount"})
	err := s.AddExpense(context.Background())

	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(api.createdExp) != 0 {
		t.Error("no request may be sent for an empty amount")
	}
	if view := s.View(); view.Err == "" {
		t.Error("the validation message must reach the view")
	}
}

func TestAddIncome_FailureKeepsForm(t *testing.T) {
	api := &mockAPI{incomeErr: &domain.ErrValidation{Message: "Income date must be YYYY-MM-DD"}}
	s := newTestSync(api, &mockCreds{token: "tok"})

	form := ledger.IncomeForm{
		Description: "august salary",
		Source:      domain.SourceSalary,
		Amount:      "5000",
		Date:        "not-a-date",
	}
	s.SetIncomeForm(form)
	if err := s.AddIncome(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}

	if got := s.IncomeForm(); got != form {
		t.Errorf("a failed submission must keep the form intact: %+v", got)
	}
	if view := s.View(); view.Err != "Income date must be YYYY-MM-DD" {
		t.Errorf("unexpected view error: %q", view.Err)
	}
}

func TestRemoveEntry_FailureKeepsEntryVisible(t *testing.T) {
	api := &mockAPI{
		listFn: func(_ int, _ url.Values) (*domain.EntryPage, error) {
			return &domain.EntryPage{Content: []domain.Entry{{ID: "e1"}}}, nil
		},
	}
	s := newTestSync(api, &mockCreds{token: "tok"})
	s.Refresh(context.Background())

	api.deleteErr = &domain.ErrTransient{Message: "ledger API unavailable"}
	if err := s.RemoveEntry(context.Background(), "e1"); err == nil {
		t.Fatal("expected error, got nil")
	}

	view := s.View()
	if len(view.Entries) != 1 || view.Entries[0].ID != "e1" {
		t.Errorf("entry must stay visible when the delete fails: %+v", view.Entries)
	}
	if view.Err == "" {
		t.Error("the delete failure must reach the view")
	}
}

func TestRemoveEntry_UnauthorizedInvalidatesSilently(t *testing.T) {
	api := &mockAPI{deleteErr: &domain.ErrUnauthorized{Status: 401}}
	creds := &mockCreds{token: "tok"}
	s := newTestSync(api, creds)

	if err := s.RemoveEntry(context.Background(), "e1"); err == nil {
		t.Fatal("expected error, got nil")
	}
	if creds.invalidations() != 1 {
		t.Errorf("expected invalidation, got %d", creds.invalidations())
	}
	if view := s.View(); view.Err != "" {
		t.Errorf("auth failure must not land in the view, got %q", view.Err)
	}
}

func TestDashboard_SecondReadServedFromCache(t *testing.T) {
	api := &mockAPI{dashboard: &domain.Dashboard{MonthKey: "2026-08"}}
	s := newTestSync(api, &mockCreds{token: "tok"})

	for i := 0; i < 2; i++ {
		if _, err := s.Dashboard(context.Background(), 6, 6); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}
	if api.dashCalls != 1 {
		t.Errorf("expected 1 upstream call, got %d", api.dashCalls)
	}
}

func TestOnCredentialChanged_FlushesDerivedCaches(t *testing.T) {
	api := &mockAPI{
		dashboard: &domain.Dashboard{MonthKey: "2026-08"},
		trend:     []domain.TrendPoint{{Month: "2026-08"}},
	}
	s := newTestSync(api, &mockCreds{token: "tok"})

	if _, err := s.Dashboard(context.Background(), 6, 6); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Trend(context.Background(), 6); err != nil {
		t.Fatal(err)
	}

	s.OnCredentialChanged(context.Background())

	if _, err := s.Dashboard(context.Background(), 6, 6); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Trend(context.Background(), 6); err != nil {
		t.Fatal(err)
	}
	if api.dashCalls != 2 || api.trendCalls != 2 {
		t.Errorf("credential change must drop cached reads, got dash=%d trend=%d",
			api.dashCalls, api.trendCalls)
	}
}

func TestOnFilterChanged_UsesCurrentSelection(t *testing.T) {
	var lastQuery url.Values
	api := &mockAPI{
		listFn: func(_ int, q url.Values) (*domain.EntryPage, error) {
			lastQuery = q
			return &domain.EntryPage{}, nil
		},
	}
	creds := &mockCreds{token: "tok"}
	filters := ledger.NewFilterState()
	s := ledger.NewSync(api, creds, filters, observability.NewMetrics(), zap.NewNop(), time.Minute)
	filters.OnChange(func() { s.OnFilterChanged(context.Background()) })

	filters.SetType("expense")

	if lastQuery == nil {
		t.Fatal("filter change must trigger a refresh")
	}
	if got := lastQuery.Get("type"); got != "expense" {
		t.Errorf("refresh must use the new selection, got type=%q", got)
	}
}
