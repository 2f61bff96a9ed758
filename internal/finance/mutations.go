package finance

import (
	"context"
	"errors"

	"finsession/internal/api"
	"finsession/internal/cache"
	"finsession/internal/core"
	"finsession/internal/log"
	"finsession/internal/notify"
)

// mutate runs call and reports its outcome. Failures are toasted and
// returned; validation failures are returned without a toast since the
// caller shows them inline. On success the matching refresh runs before
// mutate returns.
func mutate[T any](ctx context.Context, p *Provider, resource, op, done string, call func() (T, error)) (T, error) {
	v, err := call()
	if err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			return v, err
		}
		p.logger.ErrorContext(ctx, "Mutation failed",
			log.FieldResource, resource,
			log.FieldOperation, op,
			log.FieldError, err)
		p.toast(ctx, notify.LevelError, api.Message(err))
		return v, err
	}
	p.logger.InfoContext(ctx, "Mutation succeeded", log.FieldResource, resource, log.FieldOperation, op)
	p.toast(ctx, notify.LevelSuccess, done)
	p.afterMutation(ctx, resource)
	return v, nil
}

func mutateNoResult(ctx context.Context, p *Provider, resource, op, done string, call func() error) error {
	_, err := mutate(ctx, p, resource, op, done, func() (struct{}, error) {
		return struct{}{}, call()
	})
	return err
}

// afterMutation refreshes what a change to resource may have invalidated.
// Account balances move with every non-category mutation, so the cached
// summary is dropped first.
func (p *Provider) afterMutation(ctx context.Context, resource string) {
	if resource == "categories" {
		p.RefreshCategories(ctx)
		return
	}
	if resource != "budgets" {
		if err := p.cache.Remove(ctx, cache.KeySummary); err != nil {
			p.logger.WarnContext(ctx, "Failed to evict summary", log.FieldError, err)
		}
	}
	p.RefreshData(ctx, false)
}

func (p *Provider) CreateAccount(ctx context.Context, in core.AccountInput) (core.Account, error) {
	return mutate(ctx, p, "accounts", log.OpCreate, "Account created", func() (core.Account, error) {
		return p.api.CreateAccount(ctx, in)
	})
}

func (p *Provider) UpdateAccount(ctx context.Context, id string, in core.AccountInput) (core.Account, error) {
	return mutate(ctx, p, "accounts", log.OpUpdate, "Account updated", func() (core.Account, error) {
		return p.api.UpdateAccount(ctx, id, in)
	})
}

func (p *Provider) DeleteAccount(ctx context.Context, id string) error {
	return mutateNoResult(ctx, p, "accounts", log.OpDelete, "Account deleted", func() error {
		return p.api.DeleteAccount(ctx, id)
	})
}

func (p *Provider) CreateTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	return mutate(ctx, p, "transactions", log.OpCreate, "Transaction created", func() (core.Transaction, error) {
		return p.api.CreateTransaction(ctx, in)
	})
}

func (p *Provider) UpdateTransaction(ctx context.Context, id string, in core.TransactionInput) (core.Transaction, error) {
	return mutate(ctx, p, "transactions", log.OpUpdate, "Transaction updated", func() (core.Transaction, error) {
		return p.api.UpdateTransaction(ctx, id, in)
	})
}

func (p *Provider) DeleteTransaction(ctx context.Context, id string) error {
	return mutateNoResult(ctx, p, "transactions", log.OpDelete, "Transaction deleted", func() error {
		return p.api.DeleteTransaction(ctx, id)
	})
}

func (p *Provider) CreateTransfer(ctx context.Context, in core.TransferInput) (core.Transfer, error) {
	return mutate(ctx, p, "transfers", log.OpCreate, "Transfer created", func() (core.Transfer, error) {
		return p.api.CreateTransfer(ctx, in)
	})
}

func (p *Provider) UpdateTransfer(ctx context.Context, id string, in core.TransferInput) (core.Transfer, error) {
	return mutate(ctx, p, "transfers", log.OpUpdate, "Transfer updated", func() (core.Transfer, error) {
		return p.api.UpdateTransfer(ctx, id, in)
	})
}

func (p *Provider) DeleteTransfer(ctx context.Context, id string) error {
	return mutateNoResult(ctx, p, "transfers", log.OpDelete, "Transfer deleted", func() error {
		return p.api.DeleteTransfer(ctx, id)
	})
}

func (p *Provider) CreateBudget(ctx context.Context, in core.BudgetInput) (core.Budget, error) {
	return mutate(ctx, p, "budgets", log.OpCreate, "Budget created", func() (core.Budget, error) {
		return p.api.CreateBudget(ctx, in)
	})
}

func (p *Provider) UpdateBudget(ctx context.Context, id string, in core.BudgetInput) (core.Budget, error) {
	return mutate(ctx, p, "budgets", log.OpUpdate, "Budget updated", func() (core.Budget, error) {
		return p.api.UpdateBudget(ctx, id, in)
	})
}

func (p *Provider) DeleteBudget(ctx context.Context, id string) error {
	return mutateNoResult(ctx, p, "budgets", log.OpDelete, "Budget deleted", func() error {
		return p.api.DeleteBudget(ctx, id)
	})
}

func (p *Provider) CreateCategory(ctx context.Context, in core.CategoryInput) (core.Category, error) {
	return mutate(ctx, p, "categories", log.OpCreate, "Category created", func() (core.Category, error) {
		return p.api.CreateCategory(ctx, in)
	})
}

func (p *Provider) UpdateCategory(ctx context.Context, id string, in core.CategoryInput) (core.Category, error) {
	return mutate(ctx, p, "categories", log.OpUpdate, "Category updated", func() (core.Category, error) {
		return p.api.UpdateCategory(ctx, id, in)
	})
}

func (p *Provider) DeleteCategory(ctx context.Context, id string) error {
	return mutateNoResult(ctx, p, "categories", log.OpDelete, "Category deleted", func() error {
		return p.api.DeleteCategory(ctx, id)
	})
}
