package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"finsession/internal/core"
)

const dateLayout = "2006-01-02"

// ListAccounts returns every account of the signed-in user.
func (c *Client) ListAccounts(ctx context.Context) ([]core.Account, error) {
	var out []core.Account
	if err := c.do(ctx, http.MethodGet, "/accounts", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTransactions returns the transactions dated within r. An empty typ
// returns both income and expense.
func (c *Client) ListTransactions(ctx context.Context, r core.DateRange, typ core.TransactionType) ([]core.Transaction, error) {
	if r.Start.IsZero() || r.End.IsZero() || r.End.Before(r.Start) {
		return nil, fmt.Errorf("list transactions: %w: bad date range", ErrInvalidArgs)
	}
	q := url.Values{}
	q.Set("startDate", r.Start.Format(dateLayout))
	q.Set("endDate", r.End.Format(dateLayout))
	if typ != "" {
		if !typ.IsValid() {
			return nil, fmt.Errorf("list transactions: %w: unknown type %q", ErrInvalidArgs, typ)
		}
		q.Set("type", string(typ))
	}
	var out []core.Transaction
	if err := c.do(ctx, http.MethodGet, "/transactions", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// IncomeExpense returns the income/expense totals of the period containing
// at. Daily queries send the date, monthly the year and month, yearly the
// year.
func (c *Client) IncomeExpense(ctx context.Context, period core.Period, at time.Time) (core.IncomeExpense, error) {
	q, err := periodQuery(period, at)
	if err != nil {
		return core.IncomeExpense{}, fmt.Errorf("income expense: %w", err)
	}
	var out core.IncomeExpense
	if err := c.do(ctx, http.MethodGet, "/transactions/income-expense", q, nil, &out); err != nil {
		return core.IncomeExpense{}, err
	}
	return out, nil
}

func periodQuery(period core.Period, at time.Time) (url.Values, error) {
	if at.IsZero() {
		return nil, fmt.Errorf("%w: missing reference date", ErrInvalidArgs)
	}
	q := url.Values{}
	q.Set("period", string(period))
	switch period {
	case core.Daily:
		q.Set("date", at.Format(dateLayout))
	case core.Monthly:
		q.Set("year", strconv.Itoa(at.Year()))
		q.Set("month", strconv.Itoa(int(at.Month())))
	case core.Yearly:
		q.Set("year", strconv.Itoa(at.Year()))
	default:
		return nil, fmt.Errorf("%w: unknown period %q", ErrInvalidArgs, period)
	}
	return q, nil
}

// AccountSummary returns the account-level totals.
func (c *Client) AccountSummary(ctx context.Context) (core.Summary, error) {
	var out core.Summary
	if err := c.do(ctx, http.MethodGet, "/accounts/summary", nil, nil, &out); err != nil {
		return core.Summary{}, err
	}
	return out, nil
}

// ListCategories returns the categories. The payload may be a list or an
// object wrapping it; any other shape is a *ParseError.
func (c *Client) ListCategories(ctx context.Context) ([]core.Category, error) {
	var out categoryList
	if err := c.do(ctx, http.MethodGet, "/categories", nil, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return []core.Category{}, nil
	}
	return out, nil
}

func (c *Client) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	var out []core.Budget
	if err := c.do(ctx, http.MethodGet, "/budgets", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SuggestCategory asks the API to guess a category for a transaction
// description.
func (c *Client) SuggestCategory(ctx context.Context, description string) (core.CategorySuggestion, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return core.CategorySuggestion{}, fmt.Errorf("suggest category: %w: empty description", ErrInvalidArgs)
	}
	body := map[string]string{"description": description}
	var out core.CategorySuggestion
	if err := c.do(ctx, http.MethodPost, "/categories/suggest", nil, body, &out); err != nil {
		return core.CategorySuggestion{}, err
	}
	return out, nil
}
