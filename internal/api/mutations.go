package api

import (
	"context"
	"net/http"

	"finsession/internal/core"
)

func create[In, Out any](ctx context.Context, c *Client, path string, in In) (Out, error) {
	var out Out
	if err := core.Validate(in); err != nil {
		return out, err
	}
	err := c.do(ctx, http.MethodPost, path, nil, in, &out)
	return out, err
}

func update[In, Out any](ctx context.Context, c *Client, path, id string, in In) (Out, error) {
	var out Out
	if id == "" {
		return out, ErrMissingID
	}
	if err := core.Validate(in); err != nil {
		return out, err
	}
	err := c.do(ctx, http.MethodPut, path+"/"+id, nil, in, &out)
	return out, err
}

func (c *Client) remove(ctx context.Context, path, id string) error {
	if id == "" {
		return ErrMissingID
	}
	return c.do(ctx, http.MethodDelete, path+"/"+id, nil, nil, nil)
}

func (c *Client) CreateAccount(ctx context.Context, in core.AccountInput) (core.Account, error) {
	return create[core.AccountInput, core.Account](ctx, c, "/accounts", in)
}

func (c *Client) UpdateAccount(ctx context.Context, id string, in core.AccountInput) (core.Account, error) {
	return update[core.AccountInput, core.Account](ctx, c, "/accounts", id, in)
}

func (c *Client) DeleteAccount(ctx context.Context, id string) error {
	return c.remove(ctx, "/accounts", id)
}

func (c *Client) CreateTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	return create[core.TransactionInput, core.Transaction](ctx, c, "/transactions", in)
}

func (c *Client) UpdateTransaction(ctx context.Context, id string, in core.TransactionInput) (core.Transaction, error) {
	return update[core.TransactionInput, core.Transaction](ctx, c, "/transactions", id, in)
}

func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	return c.remove(ctx, "/transactions", id)
}

func (c *Client) CreateTransfer(ctx context.Context, in core.TransferInput) (core.Transfer, error) {
	return create[core.TransferInput, core.Transfer](ctx, c, "/transfers", in)
}

func (c *Client) UpdateTransfer(ctx context.Context, id string, in core.TransferInput) (core.Transfer, error) {
	return update[core.TransferInput, core.Transfer](ctx, c, "/transfers", id, in)
}

func (c *Client) DeleteTransfer(ctx context.Context, id string) error {
	return c.remove(ctx, "/transfers", id)
}

func (c *Client) CreateBudget(ctx context.Context, in core.BudgetInput) (core.Budget, error) {
	return create[core.BudgetInput, core.Budget](ctx, c, "/budgets", in)
}

func (c *Client) UpdateBudget(ctx context.Context, id string, in core.BudgetInput) (core.Budget, error) {
	return update[core.BudgetInput, core.Budget](ctx, c, "/budgets", id, in)
}

func (c *Client) DeleteBudget(ctx context.Context, id string) error {
	return c.remove(ctx, "/budgets", id)
}

func (c *Client) CreateCategory(ctx context.Context, in core.CategoryInput) (core.Category, error) {
	return create[core.CategoryInput, core.Category](ctx, c, "/categories", in)
}

func (c *Client) UpdateCategory(ctx context.Context, id string, in core.CategoryInput) (core.Category, error) {
	return update[core.CategoryInput, core.Category](ctx, c, "/categories", id, in)
}

func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	return c.remove(ctx, "/categories", id)
}
