package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jhalvorsen/ledgerview/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ListEntries fetches the filtered, sorted, paged entry list.
func (c *Client) ListEntries(ctx context.Context, query url.Values, token string) (*domain.EntryPage, error) {
	ctx, done := span(ctx, "Client.ListEntries", attribute.String("query", query.Encode()))
	defer done()

	var page domain.EntryPage
	if err := c.do(ctx, "list_entries", http.MethodGet, "/api/ledger/entries", query, token, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetSummary fetches the aggregate totals matching the same filters.
func (c *Client) GetSummary(ctx context.Context, query url.Values, token string) (*domain.Summary, error) {
	ctx, done := span(ctx, "Client.GetSummary", attribute.String("query", query.Encode()))
	defer done()

	var summary domain.Summary
	if err := c.do(ctx, "get_summary", http.MethodGet, "/api/ledger/summary", query, token, nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// GetTrend fetches the month-by-month income/expense trend.
func (c *Client) GetTrend(ctx context.Context, months int, token string) ([]domain.TrendPoint, error) {
	ctx, done := span(ctx, "Client.GetTrend", attribute.Int("months", months))
	defer done()

	query := url.Values{}
	if months > 0 {
		query.Set("months", strconv.Itoa(months))
	}

	var trend []domain.TrendPoint
	if err := c.do(ctx, "get_trend", http.MethodGet, "/api/ledger/trend", query, token, nil, &trend); err != nil {
		return nil, err
	}
	return trend, nil
}

// GetDashboard fetches the current-month rollup with trend and recent expenses.
func (c *Client) GetDashboard(ctx context.Context, trendMonths, recentSize int, token string) (*domain.Dashboard, error) {
	ctx, done := span(ctx, "Client.GetDashboard")
	defer done()

	query := url.Values{}
	if trendMonths > 0 {
		query.Set("trendMonths", strconv.Itoa(trendMonths))
	}
	if recentSize > 0 {
		query.Set("recentSize", strconv.Itoa(recentSize))
	}

	var dashboard domain.Dashboard
	if err := c.do(ctx, "get_dashboard", http.MethodGet, "/api/ledger/dashboard", query, token, nil, &dashboard); err != nil {
		return nil, err
	}
	return &dashboard, nil
}

// CreateExpense records a new expense entry.
func (c *Client) CreateExpense(ctx context.Context, req *domain.CreateExpenseRequest, token string) (*domain.Entry, error) {
	ctx, done := span(ctx, "Client.CreateExpense", attribute.String("category", req.Category))
	defer done()

	var entry domain.Entry
	if err := c.do(ctx, "create_expense", http.MethodPost, "/api/ledger/expenses", nil, token, req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// CreateIncome records a new income entry.
func (c *Client) CreateIncome(ctx context.Context, req *domain.CreateIncomeRequest, token string) (*domain.Entry, error) {
	ctx, done := span(ctx, "Client.CreateIncome", attribute.String("source", req.Source))
	defer done()

	var entry domain.Entry
	if err := c.do(ctx, "create_income", http.MethodPost, "/api/ledger/incomes", nil, token, req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeleteEntry removes an entry by id. The backend answers 204.
func (c *Client) DeleteEntry(ctx context.Context, id domain.ID, token string) error {
	ctx, done := span(ctx, "Client.DeleteEntry", attribute.String("entry.id", string(id)))
	defer done()

	return c.do(ctx, "delete_entry", http.MethodDelete, "/api/ledger/entries/"+url.PathEscape(string(id)), nil, token, nil, nil)
}
