// Package ledgerd is a local development server that speaks the same
// ledger API as the real backend, backed by a sqlite file. It exists so
// the client can be exercised end to end without the production stack.
package ledgerd

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jhalvorsen/ledgerview/internal/domain"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	username   TEXT NOT NULL UNIQUE,
	email      TEXT NOT NULL UNIQUE,
	pass_hash  TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entries (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL REFERENCES users(id),
	kind        TEXT NOT NULL CHECK (kind IN ('expense', 'income')),
	description TEXT NOT NULL,
	category    TEXT,
	source      TEXT,
	amount      REAL NOT NULL,
	entry_date  TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_user_date ON entries(user_id, entry_date);
`

// Store wraps the sqlite database.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if needed bootstraps) the sqlite database.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Users ---

type userRow struct {
	ID       string
	Username string
	Email    string
	PassHash string
}

// CreateUser inserts a new account; duplicate username/email yields ErrConflict.
func (s *Store) CreateUser(username, email, passHash string) (*domain.User, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO users (id, username, email, pass_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, username, email, passHash, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, &domain.ErrConflict{Message: "Username or email already taken"}
		}
		return nil, err
	}
	return &domain.User{ID: domain.ID(id), Username: username, Email: email}, nil
}

// FindUserByLogin looks an account up by username or email.
func (s *Store) FindUserByLogin(login string) (*userRow, error) {
	row := s.db.QueryRow(
		`SELECT id, username, email, pass_hash FROM users WHERE username = ? OR email = ?`,
		login, login,
	)
	var u userRow
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PassHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, &domain.ErrNotFound{Resource: "user", ID: login}
		}
		return nil, err
	}
	return &u, nil
}

// FindUserByID resolves the account behind a token subject.
func (s *Store) FindUserByID(id string) (*domain.User, error) {
	row := s.db.QueryRow(`SELECT id, username, email FROM users WHERE id = ?`, id)
	var u domain.User
	var rawID string
	if err := row.Scan(&rawID, &u.Username, &u.Email); err != nil {
		if err == sql.ErrNoRows {
			return nil, &domain.ErrNotFound{Resource: "user", ID: id}
		}
		return nil, err
	}
	u.ID = domain.ID(rawID)
	return &u, nil
}

// --- Entries ---

// EntryFilter mirrors the query parameters of GET /api/ledger/entries.
type EntryFilter struct {
	Type      string
	Category  string
	Source    string
	DateFrom  string
	DateTo    string
	MinAmount float64
	HasMin    bool
	MaxAmount float64
	HasMax    bool
	SortBy    string
	SortDir   string
	Page      int
	Size      int
}

// InsertEntry records a new expense or income row.
func (s *Store) InsertEntry(userID string, kind domain.EntryKind, description, category, source string, amount float64, date string) (*domain.Entry, error) {
	id := uuid.New().String()
	var cat, src any
	if category != "" {
		cat = category
	}
	if source != "" {
		src = source
	}
	_, err := s.db.Exec(
		`INSERT INTO entries (id, user_id, kind, description, category, source, amount, entry_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, userID, string(kind), description, cat, src, amount, date, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}
	return &domain.Entry{
		ID:          domain.ID(id),
		Kind:        kind,
		Description: description,
		Category:    category,
		Source:      source,
		Amount:      money(amount),
		Date:        date,
	}, nil
}

// DeleteEntry removes an entry owned by the user; missing rows yield ErrNotFound.
func (s *Store) DeleteEntry(userID, id string) error {
	res, err := s.db.Exec(`DELETE FROM entries WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &domain.ErrNotFound{Resource: "entry", ID: id}
	}
	return nil
}

// ListEntries applies the filter, sort and paging in SQL.
func (s *Store) ListEntries(userID string, f EntryFilter) ([]domain.Entry, error) {
	where, args := filterClause(userID, f)

	order := "entry_date"
	switch f.SortBy {
	case "amount":
		order = "amount"
	case "tag":
		order = "COALESCE(category, source)"
	}
	dir := "DESC"
	if strings.EqualFold(f.SortDir, "asc") {
		dir = "ASC"
	}

	size := f.Size
	if size < 1 {
		size = 1
	}
	if size > 500 {
		size = 500
	}
	page := f.Page
	if page < 0 {
		page = 0
	}

	query := fmt.Sprintf(
		`SELECT id, kind, description, category, source, amount, entry_date
		 FROM entries %s ORDER BY %s %s, id LIMIT ? OFFSET ?`,
		where, order, dir,
	)
	args = append(args, size, page*size)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.Entry, 0)
	for rows.Next() {
		var e domain.Entry
		var id string
		var category, source sql.NullString
		var amount float64
		if err := rows.Scan(&id, &e.Kind, &e.Description, &category, &source, &amount, &e.Date); err != nil {
			return nil, err
		}
		e.ID = domain.ID(id)
		e.Category = category.String
		e.Source = source.String
		e.Amount = money(amount)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Summary computes the aggregate totals under the same filter.
func (s *Store) Summary(userID string, f EntryFilter) (*domain.Summary, error) {
	where, args := filterClause(userID, f)

	query := fmt.Sprintf(
		`SELECT
			COALESCE(SUM(CASE WHEN kind = 'income' THEN amount END), 0),
			COALESCE(SUM(CASE WHEN kind = 'expense' THEN amount END), 0)
		 FROM entries %s`, where,
	)
	var income, expense float64
	if err := s.db.QueryRow(query, args...).Scan(&income, &expense); err != nil {
		return nil, err
	}

	totalIncome := money(income)
	totalExpense := money(expense)
	pnl := money(income - expense)
	return &domain.Summary{
		TotalIncome:  &totalIncome,
		TotalExpense: &totalExpense,
		PnL:          &pnl,
	}, nil
}

// Trend aggregates per-month totals over the trailing months window.
func (s *Store) Trend(userID string, months int) ([]domain.TrendPoint, error) {
	if months < 1 {
		months = 6
	}
	from := time.Now().AddDate(0, -(months - 1), 0).Format("2006-01")

	rows, err := s.db.Query(
		`SELECT substr(entry_date, 1, 7) AS month,
			COALESCE(SUM(CASE WHEN kind = 'income' THEN amount END), 0),
			COALESCE(SUM(CASE WHEN kind = 'expense' THEN amount END), 0)
		 FROM entries
		 WHERE user_id = ? AND substr(entry_date, 1, 7) >= ?
		 GROUP BY month ORDER BY month`,
		userID, from,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trend := make([]domain.TrendPoint, 0, months)
	for rows.Next() {
		var p domain.TrendPoint
		var income, expense float64
		if err := rows.Scan(&p.Month, &income, &expense); err != nil {
			return nil, err
		}
		p.Income = money(income)
		p.Expense = money(expense)
		p.Net = money(income - expense)
		trend = append(trend, p)
	}
	return trend, rows.Err()
}

// Dashboard assembles the current-month rollup.
func (s *Store) Dashboard(userID string, trendMonths, recentSize int) (*domain.Dashboard, error) {
	monthKey := time.Now().Format("2006-01")

	var income, expense float64
	err := s.db.QueryRow(
		`SELECT
			COALESCE(SUM(CASE WHEN kind = 'income' THEN amount END), 0),
			COALESCE(SUM(CASE WHEN kind = 'expense' THEN amount END), 0)
		 FROM entries WHERE user_id = ? AND substr(entry_date, 1, 7) = ?`,
		userID, monthKey,
	).Scan(&income, &expense)
	if err != nil {
		return nil, err
	}

	trend, err := s.Trend(userID, trendMonths)
	if err != nil {
		return nil, err
	}

	if recentSize < 1 {
		recentSize = 6
	}
	recent, err := s.ListEntries(userID, EntryFilter{
		Type:    string(domain.KindExpense),
		SortBy:  "date",
		SortDir: "desc",
		Size:    recentSize,
	})
	if err != nil {
		return nil, err
	}

	return &domain.Dashboard{
		MonthKey:       monthKey,
		MonthIncome:    money(income),
		MonthExpense:   money(expense),
		MonthPnL:       money(income - expense),
		Trend:          trend,
		RecentExpenses: recent,
	}, nil
}

func filterClause(userID string, f EntryFilter) (string, []any) {
	clauses := []string{"user_id = ?"}
	args := []any{userID}

	if f.Type != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, f.Type)
	}
	if f.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, f.Category)
	}
	if f.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, f.Source)
	}
	if f.DateFrom != "" {
		clauses = append(clauses, "entry_date >= ?")
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		clauses = append(clauses, "entry_date <= ?")
		args = append(args, f.DateTo)
	}
	if f.HasMin {
		clauses = append(clauses, "amount >= ?")
		args = append(args, f.MinAmount)
	}
	if f.HasMax {
		clauses = append(clauses, "amount <= ?")
		args = append(args, f.MaxAmount)
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

// money renders a float as a two-decimal wire string.
func money(v float64) domain.Decimal {
	return domain.Decimal(fmt.Sprintf("%.2f", v))
}
