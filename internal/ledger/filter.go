// Package ledger is the client core: filter/sort state, query
// derivation, and the synchronization logic that keeps the entry list
// and the aggregate summary consistent with the current selection.
package ledger

import (
	"net/url"
	"strconv"
	"sync"

	"github.com/jhalvorsen/ledgerview/internal/domain"
)

// The entry list is a single fixed page; the client never paginates.
const (
	listPage = 0
	listSize = 50
)

// Selection is the user's current filter/sort choice. Empty string
// means "unset" for every field; unset fields are omitted from the
// derived queries.
type Selection struct {
	Type      string
	Category  string
	Source    string
	DateFrom  string
	DateTo    string
	MinAmount string
	MaxAmount string
	SortBy    string
	SortDir   string
}

// DefaultSelection returns the initial selection: all filters unset,
// newest entries first.
func DefaultSelection() Selection {
	return Selection{
		SortBy:  domain.SortByDate,
		SortDir: domain.SortDesc,
	}
}

// ListQuery derives the entry-list query parameters from a selection.
// Pure: equal selections produce deep-equal values. Unset fields are
// omitted entirely, never serialized as `field=`.
//
// Tag sorting conflates category and source, which only coexist when a
// concrete type is selected; without one the backend cannot compare
// rows, so sortBy=tag silently falls back to date.
func ListQuery(sel Selection) url.Values {
	q := filterParams(sel)

	sortBy := sel.SortBy
	if sortBy == "" {
		sortBy = domain.SortByDate
	}
	if sortBy == domain.SortByTag && sel.Type == "" {
		sortBy = domain.SortByDate
	}
	q.Set("sortBy", sortBy)

	sortDir := sel.SortDir
	if sortDir == "" {
		sortDir = domain.SortDesc
	}
	q.Set("sortDir", sortDir)

	q.Set("page", strconv.Itoa(listPage))
	q.Set("size", strconv.Itoa(listSize))
	return q
}

// SummaryQuery derives the aggregate-summary query parameters: the same
// filters as ListQuery with no sort or pagination.
func SummaryQuery(sel Selection) url.Values {
	return filterParams(sel)
}

func filterParams(sel Selection) url.Values {
	q := url.Values{}
	setIfPresent(q, "type", sel.Type)
	setIfPresent(q, "category", sel.Category)
	setIfPresent(q, "source", sel.Source)
	setIfPresent(q, "dateFrom", sel.DateFrom)
	setIfPresent(q, "dateTo", sel.DateTo)
	setIfPresent(q, "minAmount", sel.MinAmount)
	setIfPresent(q, "maxAmount", sel.MaxAmount)
	return q
}

func setIfPresent(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

// FilterState owns the mutable selection for a page session. Mutation
// goes through the setters so the change callback fires exactly once
// per user action.
type FilterState struct {
	mu       sync.Mutex
	sel      Selection
	onChange func()
}

// NewFilterState creates a FilterState initialized to defaults.
func NewFilterState() *FilterState {
	return &FilterState{sel: DefaultSelection()}
}

// OnChange registers the callback fired after every selection change.
func (f *FilterState) OnChange(fn func()) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

// Selection returns a copy of the current selection.
func (f *FilterState) Selection() Selection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sel
}

// Reset restores the default selection.
func (f *FilterState) Reset() {
	f.update(func(sel *Selection) { *sel = DefaultSelection() })
}

// SetType selects expense, income, or "" for all.
func (f *FilterState) SetType(v string) {
	f.update(func(sel *Selection) { sel.Type = v })
}

// SetCategory filters expenses by category.
func (f *FilterState) SetCategory(v string) {
	f.update(func(sel *Selection) { sel.Category = v })
}

// SetSource filters incomes by source.
func (f *FilterState) SetSource(v string) {
	f.update(func(sel *Selection) { sel.Source = v })
}

// SetDateRange bounds entries by date; either side may be "".
func (f *FilterState) SetDateRange(from, to string) {
	f.update(func(sel *Selection) {
		sel.DateFrom = from
		sel.DateTo = to
	})
}

// SetAmountRange bounds entries by amount; either side may be "".
func (f *FilterState) SetAmountRange(min, max string) {
	f.update(func(sel *Selection) {
		sel.MinAmount = min
		sel.MaxAmount = max
	})
}

// SetSort picks the sort key and direction.
func (f *FilterState) SetSort(by, dir string) {
	f.update(func(sel *Selection) {
		sel.SortBy = by
		sel.SortDir = dir
	})
}

func (f *FilterState) update(mutate func(*Selection)) {
	f.mu.Lock()
	mutate(&f.sel)
	fn := f.onChange
	f.mu.Unlock()

	if fn != nil {
		fn()
	}
}
