// Command ledgerview is a terminal client for the personal ledger API:
// login/logout, filtered entry listings with aggregate totals, dashboard
// and trend views, and add/remove operations.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/jhalvorsen/ledgerview/internal/api"
	"github.com/jhalvorsen/ledgerview/internal/config"
	"github.com/jhalvorsen/ledgerview/internal/domain"
	"github.com/jhalvorsen/ledgerview/internal/infra/observability"
	"github.com/jhalvorsen/ledgerview/internal/infra/resilience"
	"github.com/jhalvorsen/ledgerview/internal/ledger"
	"github.com/jhalvorsen/ledgerview/internal/session"

	"go.uber.org/zap"
)

const usage = `usage: ledgerview <command> [flags]

commands:
  login        -user <username-or-email> -password <password>
  signup       -user <username> -email <email> -password <password>
  logout
  whoami
  entries      [-type t] [-category c] [-source s] [-from d] [-to d]
               [-min a] [-max a] [-sort date|amount|tag] [-dir asc|desc]
  summary      same filter flags as entries
  dashboard    [-trend-months n] [-recent n]
  trend        [-months n]
  add-expense  -desc <text> -amount <amount> [-category c] [-date d]
  add-income   -desc <text> -amount <amount> [-source s] [-date d]
  remove       <entry-id>
`

// app bundles everything a command needs.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics
	session *session.Manager
	filters *ledger.FilterState
	sync    *ledger.Sync
}

func main() {
	_ = config.LoadDotEnv(".env")
	cfg := config.Load()

	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	shutdown := observability.NoopTracer()
	if cfg.TracingOn {
		var err error
		shutdown, err = observability.InitTracer(cfg.OTLPEndpoint, "ledgerview")
		if err != nil {
			logger.Fatal("failed to init tracer", zap.Error(err))
		}
	}
	defer shutdown(context.Background())

	metrics := observability.NewMetrics()
	cb := resilience.NewCircuitBreaker("ledger-api")
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	client := api.NewClient(httpClient, cfg.APIBaseURL, cb, metrics, logger)

	sess := session.NewManager(client, session.NewFileStore(cfg.TokenPath), logger)
	filters := ledger.NewFilterState()
	sync := ledger.NewSync(client, sess, filters, metrics, logger, cfg.CacheTTL)
	defer sync.Close()

	ctx := context.Background()
	filters.OnChange(func() { sync.OnFilterChanged(ctx) })
	sess.OnChange(func() { sync.OnCredentialChanged(ctx) })

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		session: sess,
		filters: filters,
		sync:    sync,
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	err := a.run(ctx, os.Args[1], os.Args[2:])

	snapshot := metrics.Snapshot()
	logger.Debug("run finished",
		zap.Float64("requests", snapshot.Requests),
		zap.Float64("errors", snapshot.Errors),
		zap.Float64("stale_drops", snapshot.StaleDrops),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return a.cmdLogin(ctx, args)
	case "signup":
		return a.cmdSignup(ctx, args)
	case "logout":
		a.session.Logout()
		fmt.Println("Logged out.")
		return nil
	case "whoami":
		return a.cmdWhoami(ctx)
	case "entries":
		return a.cmdEntries(ctx, args, true)
	case "summary":
		return a.cmdEntries(ctx, args, false)
	case "dashboard":
		return a.cmdDashboard(ctx, args)
	case "trend":
		return a.cmdTrend(ctx, args)
	case "add-expense":
		return a.cmdAddExpense(ctx, args)
	case "add-income":
		return a.cmdAddIncome(ctx, args)
	case "remove":
		return a.cmdRemove(ctx, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	user := fs.String("user", "", "username or email")
	password := fs.String("password", "", "password")
	fs.Parse(args)
	if *user == "" || *password == "" {
		return fmt.Errorf("login requires -user and -password")
	}

	u, err := a.session.Login(ctx, *user, *password)
	if err != nil {
		return err
	}
	if u != nil {
		fmt.Printf("Logged in as %s <%s>.\n", u.Username, u.Email)
	} else {
		fmt.Println("Logged in.")
	}
	return nil
}

func (a *app) cmdSignup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	user := fs.String("user", "", "username")
	email := fs.String("email", "", "email")
	password := fs.String("password", "", "password")
	fs.Parse(args)
	if *user == "" || *email == "" || *password == "" {
		return fmt.Errorf("signup requires -user, -email and -password")
	}

	if err := a.session.Signup(ctx, *user, *email, *password); err != nil {
		return err
	}
	fmt.Println("Account created. Log in with: ledgerview login")
	return nil
}

func (a *app) cmdWhoami(ctx context.Context) error {
	if !a.session.IsAuthenticated() {
		fmt.Println("Not logged in.")
		return nil
	}
	if err := a.session.RefreshMe(ctx); err != nil {
		return err
	}
	u := a.session.CurrentUser()
	if u == nil {
		fmt.Println("Not logged in.")
		return nil
	}
	fmt.Printf("%s <%s>\n", u.Username, u.Email)
	return nil
}

// applyFilterFlags parses the shared filter/sort flags into the filter
// state. Registered change callbacks are suspended while the flags are
// applied so the one-shot command refreshes exactly once.
func (a *app) applyFilterFlags(name string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	typ := fs.String("type", "", "expense or income")
	category := fs.String("category", "", "expense category")
	source := fs.String("source", "", "income source")
	from := fs.String("from", "", "start date (YYYY-MM-DD)")
	to := fs.String("to", "", "end date (YYYY-MM-DD)")
	min := fs.String("min", "", "minimum amount")
	max := fs.String("max", "", "maximum amount")
	sortBy := fs.String("sort", "", "sort key: date, amount or tag")
	sortDir := fs.String("dir", "", "sort direction: asc or desc")
	fs.Parse(args)

	a.filters.OnChange(nil)
	a.filters.SetType(*typ)
	a.filters.SetCategory(*category)
	a.filters.SetSource(*source)
	a.filters.SetDateRange(*from, *to)
	a.filters.SetAmountRange(*min, *max)
	if *sortBy != "" || *sortDir != "" {
		a.filters.SetSort(*sortBy, *sortDir)
	}
	return nil
}

func (a *app) cmdEntries(ctx context.Context, args []string, withList bool) error {
	if err := a.applyFilterFlags("entries", args); err != nil {
		return err
	}

	a.sync.Refresh(ctx)
	view := a.sync.View()

	if !a.session.IsAuthenticated() {
		return fmt.Errorf("session expired, log in again")
	}
	if view.Err != "" {
		return fmt.Errorf("%s", view.Err)
	}

	if withList {
		printEntries(view.Entries)
		fmt.Println()
	}
	printSummary(view.Summary)
	return nil
}

func (a *app) cmdDashboard(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("dashboard", flag.ExitOnError)
	trendMonths := fs.Int("trend-months", 6, "months of trend history")
	recent := fs.Int("recent", 6, "number of recent expenses")
	fs.Parse(args)

	dashboard, err := a.sync.Dashboard(ctx, *trendMonths, *recent)
	if err != nil {
		if !a.session.IsAuthenticated() {
			return fmt.Errorf("session expired, log in again")
		}
		return err
	}

	fmt.Printf("Month %s  income %s  expense %s  net %s\n",
		dashboard.MonthKey, dashboard.MonthIncome, dashboard.MonthExpense, dashboard.MonthPnL)
	if len(dashboard.Trend) > 0 {
		fmt.Println("\nTrend:")
		printTrend(dashboard.Trend)
	}
	if len(dashboard.RecentExpenses) > 0 {
		fmt.Println("\nRecent expenses:")
		printEntries(dashboard.RecentExpenses)
	}
	return nil
}

func (a *app) cmdTrend(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("trend", flag.ExitOnError)
	months := fs.Int("months", 6, "months of history")
	fs.Parse(args)

	trend, err := a.sync.Trend(ctx, *months)
	if err != nil {
		if !a.session.IsAuthenticated() {
			return fmt.Errorf("session expired, log in again")
		}
		return err
	}
	printTrend(trend)
	return nil
}

func (a *app) cmdAddExpense(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add-expense", flag.ExitOnError)
	form := a.sync.ExpenseForm()
	desc := fs.String("desc", "", "description")
	category := fs.String("category", form.Category, "category")
	amount := fs.String("amount", "", "amount")
	date := fs.String("date", form.Date, "date (YYYY-MM-DD)")
	fs.Parse(args)

	a.sync.SetExpenseForm(ledger.ExpenseForm{
		Description: *desc,
		Category:    *category,
		Amount:      *amount,
		Date:        *date,
	})
	if err := a.sync.AddExpense(ctx); err != nil {
		return err
	}
	fmt.Println("Expense recorded.")
	printSummary(a.sync.View().Summary)
	return nil
}

func (a *app) cmdAddIncome(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add-income", flag.ExitOnError)
	form := a.sync.IncomeForm()
	desc := fs.String("desc", "", "description")
	source := fs.String("source", form.Source, "source")
	amount := fs.String("amount", "", "amount")
	date := fs.String("date", form.Date, "date (YYYY-MM-DD)")
	fs.Parse(args)

	a.sync.SetIncomeForm(ledger.IncomeForm{
		Description: *desc,
		Source:      *source,
		Amount:      *amount,
		Date:        *date,
	})
	if err := a.sync.AddIncome(ctx); err != nil {
		return err
	}
	fmt.Println("Income recorded.")
	printSummary(a.sync.View().Summary)
	return nil
}

func (a *app) cmdRemove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("remove requires exactly one entry id")
	}
	if err := a.sync.RemoveEntry(ctx, domain.ID(args[0])); err != nil {
		return err
	}
	fmt.Println("Entry removed.")
	return nil
}

// ============================================================
// Output formatting
// ============================================================

func printEntries(entries []domain.Entry) {
	if len(entries) == 0 {
		fmt.Println("No entries.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tKIND\tDESCRIPTION\tTAG\tAMOUNT\tID")
	for _, e := range entries {
		tag := e.Category
		if e.Kind == domain.KindIncome {
			tag = e.Source
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Date, e.Kind, e.Description, tag, e.Amount, e.ID)
	}
	w.Flush()
}

func printSummary(s domain.Summary) {
	fmt.Printf("Income %s  Expense %s  Net %s\n",
		decimalOrDash(s.TotalIncome), decimalOrDash(s.TotalExpense), decimalOrDash(s.PnL))
}

func decimalOrDash(d *domain.Decimal) string {
	if d == nil {
		return "—"
	}
	return d.String()
}

func printTrend(trend []domain.TrendPoint) {
	if len(trend) == 0 {
		fmt.Println("No data.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MONTH\tINCOME\tEXPENSE\tNET")
	for _, p := range trend {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Month, p.Income, p.Expense, p.Net)
	}
	w.Flush()
}
