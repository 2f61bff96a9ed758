// Package finance owns the signed-in user's session and the finance
// snapshot the UI reads. Reads go through the cache store; refreshes fan out
// to the API concurrently and only the newest refresh may publish results.
package finance

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"finsession/internal/cache"
	"finsession/internal/core"
	"finsession/internal/log"
	"finsession/internal/metrics"
	"finsession/internal/notify"
)

const (
	DefaultEmptyRetryDelay   = time.Second
	DefaultFailureRetryDelay = 2 * time.Second
)

// API is the remote finance API as seen by the provider.
type API interface {
	ListAccounts(ctx context.Context) ([]core.Account, error)
	ListTransactions(ctx context.Context, r core.DateRange, typ core.TransactionType) ([]core.Transaction, error)
	IncomeExpense(ctx context.Context, period core.Period, at time.Time) (core.IncomeExpense, error)
	AccountSummary(ctx context.Context) (core.Summary, error)
	ListCategories(ctx context.Context) ([]core.Category, error)

	CreateAccount(ctx context.Context, in core.AccountInput) (core.Account, error)
	UpdateAccount(ctx context.Context, id string, in core.AccountInput) (core.Account, error)
	DeleteAccount(ctx context.Context, id string) error
	CreateTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, in core.TransactionInput) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	CreateTransfer(ctx context.Context, in core.TransferInput) (core.Transfer, error)
	UpdateTransfer(ctx context.Context, id string, in core.TransferInput) (core.Transfer, error)
	DeleteTransfer(ctx context.Context, id string) error
	CreateBudget(ctx context.Context, in core.BudgetInput) (core.Budget, error)
	UpdateBudget(ctx context.Context, id string, in core.BudgetInput) (core.Budget, error)
	DeleteBudget(ctx context.Context, id string) error
	CreateCategory(ctx context.Context, in core.CategoryInput) (core.Category, error)
	UpdateCategory(ctx context.Context, id string, in core.CategoryInput) (core.Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

// SessionStore persists the signed-in user's credentials.
type SessionStore interface {
	User(ctx context.Context) *core.User
	SetUser(ctx context.Context, u core.User) error
	Clear(ctx context.Context) error
	IsAuthenticated(ctx context.Context, user *core.User) bool
}

// Snapshot is a read-only copy of the finance state. A nil field has not
// been fetched yet.
type Snapshot struct {
	Accounts      []core.Account      `json:"accounts"`
	Transactions  []core.Transaction  `json:"transactions"`
	Categories    []core.Category     `json:"categories"`
	Summary       *core.Summary       `json:"summary"`
	IncomeExpense *core.IncomeExpense `json:"incomeExpense"`
	Loading       bool                `json:"loading"`
	Error         string              `json:"error,omitempty"`
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Accounts = slices.Clone(s.Accounts)
	out.Transactions = slices.Clone(s.Transactions)
	out.Categories = slices.Clone(s.Categories)
	if s.Summary != nil {
		v := *s.Summary
		out.Summary = &v
	}
	if s.IncomeExpense != nil {
		v := *s.IncomeExpense
		out.IncomeExpense = &v
	}
	return out
}

// Session is the auth view. IsAuthenticated is computed on every call.
type Session struct {
	User            *core.User `json:"user"`
	IsAuthenticated bool       `json:"isAuthenticated"`
	IsAuthLoading   bool       `json:"isAuthLoading"`
}

type Options struct {
	Notifier          notify.Notifier
	Clock             clockwork.Clock
	Logger            *log.Logger
	Metrics           *metrics.Metrics
	EmptyRetryDelay   time.Duration
	FailureRetryDelay time.Duration
}

type Provider struct {
	api      API
	sessions SessionStore
	cache    *cache.Store
	notifier notify.Notifier
	clock    clockwork.Clock
	logger   *log.Logger
	metrics  *metrics.Metrics

	emptyRetryDelay   time.Duration
	failureRetryDelay time.Duration

	// commitMu orders commits so a write-through and its snapshot update
	// are never interleaved with another generation's.
	commitMu sync.Mutex

	mu          sync.Mutex
	user        *core.User
	authLoading bool
	snap        Snapshot
	gen         uint64
	catGen      uint64
	listeners   map[int]func(Snapshot)
	nextID      int
}

func NewProvider(api API, sessions SessionStore, store *cache.Store, opts Options) *Provider {
	if opts.Notifier == nil {
		opts.Notifier = notify.Multi{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.EmptyRetryDelay <= 0 {
		opts.EmptyRetryDelay = DefaultEmptyRetryDelay
	}
	if opts.FailureRetryDelay <= 0 {
		opts.FailureRetryDelay = DefaultFailureRetryDelay
	}
	return &Provider{
		api:               api,
		sessions:          sessions,
		cache:             store,
		notifier:          opts.Notifier,
		clock:             opts.Clock,
		logger:            opts.Logger.WithComponent(log.ComponentFinance),
		metrics:           opts.Metrics,
		emptyRetryDelay:   opts.EmptyRetryDelay,
		failureRetryDelay: opts.FailureRetryDelay,
		authLoading:       true,
		listeners:         make(map[int]func(Snapshot)),
	}
}

// Snapshot returns a copy of the current finance state.
func (p *Provider) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap.clone()
}

func (p *Provider) Session(ctx context.Context) Session {
	p.mu.Lock()
	var user *core.User
	if p.user != nil {
		u := *p.user
		user = &u
	}
	loading := p.authLoading
	p.mu.Unlock()

	return Session{
		User:            user,
		IsAuthenticated: p.sessions.IsAuthenticated(ctx, user),
		IsAuthLoading:   loading,
	}
}

// OnChange registers fn to be called with a fresh snapshot after every
// change. The returned func unregisters it.
func (p *Provider) OnChange(fn func(Snapshot)) (cancel func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// changed notifies listeners. Must be called without holding mu or commitMu.
func (p *Provider) changed() {
	p.mu.Lock()
	if len(p.listeners) == 0 {
		p.mu.Unlock()
		return
	}
	snap := p.snap.clone()
	fns := make([]func(Snapshot), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (p *Provider) toast(ctx context.Context, level notify.Level, msg string) {
	t := notify.Toast{Level: level, Message: msg, Time: p.clock.Now()}
	if err := p.notifier.Notify(ctx, t); err != nil {
		p.logger.WarnContext(ctx, "Failed to deliver toast", log.FieldError, err)
	}
}
