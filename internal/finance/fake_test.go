package finance

import (
	"context"
	"errors"
	"sync"
	"time"

	"finsession/internal/api"
	"finsession/internal/core"
)

var errUnavailable = &api.Error{StatusCode: 503, Message: "Service unavailable"}

// fakeAPI serves canned data. Hooks, when set, replace the canned
// response for that call.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int

	accounts     []core.Account
	transactions []core.Transaction
	summary      core.Summary
	categories   []core.Category
	incomeExp    core.IncomeExpense

	onAccounts   func(ctx context.Context, call int) ([]core.Account, error)
	onSummary    func(ctx context.Context, call int) (core.Summary, error)
	onCategories func(ctx context.Context, call int) ([]core.Category, error)
	mutationErr  error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		calls:        map[string]int{},
		accounts:     []core.Account{{ID: "a1", Name: "Checking", Type: "bank", Balance: core.Money{Cents: 150000}}},
		transactions: []core.Transaction{{ID: "t1", AccountID: "a1", Type: core.Expense, Amount: core.Money{Cents: 2500}}},
		summary:      core.Summary{NetBalance: core.Money{Cents: 150000}},
		categories:   []core.Category{{ID: "c1", Name: "Groceries", Type: core.Expense}},
		incomeExp:    core.IncomeExpense{Income: core.Money{Cents: 300000}, Expense: core.Money{Cents: 2500}},
	}
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.calls[name]
}

func (f *fakeAPI) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) ListAccounts(ctx context.Context) ([]core.Account, error) {
	n := f.count("accounts")
	if f.onAccounts != nil {
		return f.onAccounts(ctx, n)
	}
	return f.accounts, nil
}

func (f *fakeAPI) ListTransactions(_ context.Context, r core.DateRange, _ core.TransactionType) ([]core.Transaction, error) {
	f.count("transactions")
	if r.Start.IsZero() {
		return nil, errors.New("missing range")
	}
	return f.transactions, nil
}

func (f *fakeAPI) IncomeExpense(_ context.Context, period core.Period, _ time.Time) (core.IncomeExpense, error) {
	f.count("income_expense")
	if period != core.Monthly {
		return core.IncomeExpense{}, errors.New("unexpected period")
	}
	return f.incomeExp, nil
}

func (f *fakeAPI) AccountSummary(ctx context.Context) (core.Summary, error) {
	n := f.count("summary")
	if f.onSummary != nil {
		return f.onSummary(ctx, n)
	}
	return f.summary, nil
}

func (f *fakeAPI) ListCategories(ctx context.Context) ([]core.Category, error) {
	n := f.count("categories")
	if f.onCategories != nil {
		return f.onCategories(ctx, n)
	}
	return f.categories, nil
}

func (f *fakeAPI) mutation(name string) error {
	f.count(name)
	return f.mutationErr
}

func (f *fakeAPI) CreateAccount(_ context.Context, in core.AccountInput) (core.Account, error) {
	if err := core.Validate(in); err != nil {
		return core.Account{}, err
	}
	return core.Account{ID: "new", Name: in.Name}, f.mutation("create_account")
}

func (f *fakeAPI) UpdateAccount(_ context.Context, id string, in core.AccountInput) (core.Account, error) {
	return core.Account{ID: id, Name: in.Name}, f.mutation("update_account")
}

func (f *fakeAPI) DeleteAccount(context.Context, string) error { return f.mutation("delete_account") }

func (f *fakeAPI) CreateTransaction(context.Context, core.TransactionInput) (core.Transaction, error) {
	return core.Transaction{ID: "new"}, f.mutation("create_transaction")
}

func (f *fakeAPI) UpdateTransaction(_ context.Context, id string, _ core.TransactionInput) (core.Transaction, error) {
	return core.Transaction{ID: id}, f.mutation("update_transaction")
}

func (f *fakeAPI) DeleteTransaction(context.Context, string) error {
	return f.mutation("delete_transaction")
}

func (f *fakeAPI) CreateTransfer(context.Context, core.TransferInput) (core.Transfer, error) {
	return core.Transfer{ID: "new"}, f.mutation("create_transfer")
}

func (f *fakeAPI) UpdateTransfer(_ context.Context, id string, _ core.TransferInput) (core.Transfer, error) {
	return core.Transfer{ID: id}, f.mutation("update_transfer")
}

func (f *fakeAPI) DeleteTransfer(context.Context, string) error { return f.mutation("delete_transfer") }

func (f *fakeAPI) CreateBudget(context.Context, core.BudgetInput) (core.Budget, error) {
	return core.Budget{ID: "new"}, f.mutation("create_budget")
}

func (f *fakeAPI) UpdateBudget(_ context.Context, id string, _ core.BudgetInput) (core.Budget, error) {
	return core.Budget{ID: id}, f.mutation("update_budget")
}

func (f *fakeAPI) DeleteBudget(context.Context, string) error { return f.mutation("delete_budget") }

func (f *fakeAPI) CreateCategory(_ context.Context, in core.CategoryInput) (core.Category, error) {
	return core.Category{ID: "new", Name: in.Name}, f.mutation("create_category")
}

func (f *fakeAPI) UpdateCategory(_ context.Context, id string, in core.CategoryInput) (core.Category, error) {
	return core.Category{ID: id, Name: in.Name}, f.mutation("update_category")
}

func (f *fakeAPI) DeleteCategory(context.Context, string) error { return f.mutation("delete_category") }
