// Package domain holds the ledger data model shared by the client,
// the sync core and the dev server.
package domain

// EntryKind discriminates expense and income entries.
type EntryKind string

const (
	KindExpense EntryKind = "expense"
	KindIncome  EntryKind = "income"
)

// Expense categories accepted by the backend.
const (
	CategoryPersonal   = "personal"
	CategorySurvival   = "survival"
	CategoryInvestment = "investment"
)

// Income sources accepted by the backend.
const (
	SourceFromInvestment = "from_investment"
	SourceSalary         = "salary"
	SourceFromTrading    = "from_trading"
)

// Sort keys for the entry list.
const (
	SortByDate   = "date"
	SortByAmount = "amount"
	SortByTag    = "tag"
)

// Sort directions.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ExpenseCategories lists the valid expense categories in display order.
var ExpenseCategories = []string{CategoryPersonal, CategorySurvival, CategoryInvestment}

// IncomeSources lists the valid income sources in display order.
var IncomeSources = []string{SourceFromInvestment, SourceSalary, SourceFromTrading}

// Entry is one ledger row as returned by the backend.
// Exactly one of Category/Source is set, determined by Kind.
// Amount is kept as a string: the backend emits arbitrary-precision
// decimals and the client never does arithmetic on them.
type Entry struct {
	ID          ID        `json:"id"`
	Kind        EntryKind `json:"kind"`
	Description string    `json:"description"`
	Category    string    `json:"category,omitempty"`
	Source      string    `json:"source,omitempty"`
	Amount      Decimal   `json:"amount"`
	Date        string    `json:"date"`
}

// EntryPage is the body of GET /api/ledger/entries (Spring Page envelope;
// only content is consumed).
type EntryPage struct {
	Content []Entry `json:"content"`
}

// Summary is the body of GET /api/ledger/summary. Fields are pointers:
// the backend may omit them when no entries match.
type Summary struct {
	TotalIncome  *Decimal `json:"totalIncome"`
	TotalExpense *Decimal `json:"totalExpense"`
	PnL          *Decimal `json:"pnl"`
}

// TrendPoint is one month in GET /api/ledger/trend.
type TrendPoint struct {
	Month   string  `json:"month"`
	Income  Decimal `json:"income"`
	Expense Decimal `json:"expense"`
	Net     Decimal `json:"net"`
}

// Dashboard is the body of GET /api/ledger/dashboard.
type Dashboard struct {
	MonthKey       string       `json:"monthKey"`
	MonthIncome    Decimal      `json:"monthIncome"`
	MonthExpense   Decimal      `json:"monthExpense"`
	MonthPnL       Decimal      `json:"monthPnl"`
	Trend          []TrendPoint `json:"trend"`
	RecentExpenses []Entry      `json:"recentExpenses"`
}

// CreateExpenseRequest is the body for POST /api/ledger/expenses.
type CreateExpenseRequest struct {
	Description string `json:"description"`
	Category    string `json:"category"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
}

// CreateIncomeRequest is the body for POST /api/ledger/incomes.
type CreateIncomeRequest struct {
	Description string `json:"description"`
	Source      string `json:"source"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
}
