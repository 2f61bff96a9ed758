package finance

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"finsession/internal/api"
	"finsession/internal/cache"
	"finsession/internal/core"
	"finsession/internal/log"
	"finsession/internal/metrics"
	"finsession/internal/notify"
)

const (
	kindData       = "data"
	kindCategories = "categories"
)

// fetched holds one refresh cycle's results. Summary and categories are nil
// when served from cache.
type fetched struct {
	accounts      []core.Account
	transactions  []core.Transaction
	incomeExpense core.IncomeExpense
	summary       *core.Summary
	categories    []core.Category
}

// RefreshData reloads the snapshot. With force, the cached summary and
// categories are evicted first and fetched fresh. Errors are reported
// through the snapshot's Error field and a toast, never returned.
func (p *Provider) RefreshData(ctx context.Context, force bool) {
	p.mu.Lock()
	p.gen++
	p.catGen++
	gen, catGen := p.gen, p.catGen
	p.snap.Loading = true
	p.mu.Unlock()
	p.changed()

	logger := p.logger.With(log.FieldGeneration, gen, log.FieldForce, force)
	logger.DebugContext(ctx, "Refresh started", log.FieldOperation, log.OpRefresh)

	if force {
		for _, key := range []string{cache.KeySummary, cache.KeyCategories} {
			if err := p.cache.Remove(ctx, key); err != nil {
				logger.WarnContext(ctx, "Failed to evict cache entry", log.FieldCacheKey, key, log.FieldError, err)
			}
		}
	}

	var (
		cachedSummary    *core.Summary
		cachedCategories []core.Category
	)
	if !force {
		if s, ok := cache.GetJSON[core.Summary](ctx, p.cache, cache.KeySummary); ok {
			cachedSummary = &s
		}
		if c, ok := cache.GetJSON[[]core.Category](ctx, p.cache, cache.KeyCategories); ok && c != nil {
			cachedCategories = c
		}
	}

	res, err := p.fetchAll(ctx, cachedSummary == nil, cachedCategories == nil)

	var fallback []core.Category
	if err != nil {
		if c, ok := cache.GetJSON[[]core.Category](ctx, p.cache, cache.KeyCategories); ok && c != nil {
			fallback = c
		}
	}

	p.commitMu.Lock()
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		p.commitMu.Unlock()
		p.metrics.Refresh(kindData, metrics.RefreshSuperseded)
		logger.DebugContext(ctx, "Dropping superseded refresh")
		return
	}
	catCurrent := catGen == p.catGen
	p.snap.Loading = false
	if err != nil {
		p.snap.Error = api.Message(err)
		if catCurrent && fallback != nil {
			p.snap.Categories = fallback
		}
	} else {
		p.snap.Error = ""
		p.snap.Accounts = res.accounts
		p.snap.Transactions = res.transactions
		ie := res.incomeExpense
		p.snap.IncomeExpense = &ie
		if res.summary != nil {
			p.snap.Summary = res.summary
		} else {
			p.snap.Summary = cachedSummary
		}
		if catCurrent {
			if res.categories != nil {
				p.snap.Categories = res.categories
			} else {
				p.snap.Categories = cachedCategories
			}
		}
	}
	p.mu.Unlock()

	if err == nil {
		if res.summary != nil {
			p.writeThrough(ctx, cache.KeySummary, *res.summary)
		}
		if len(res.categories) > 0 && catCurrent {
			p.writeThrough(ctx, cache.KeyCategories, res.categories)
		}
	}
	p.commitMu.Unlock()
	p.changed()

	if err != nil {
		outcome := metrics.RefreshError
		if fallback != nil {
			outcome = metrics.RefreshFallback
		}
		p.metrics.Refresh(kindData, outcome)
		logger.ErrorContext(ctx, "Refresh failed", log.FieldError, err, "categories_fallback", fallback != nil)
		p.toast(ctx, notify.LevelError, api.Message(err))
		return
	}
	p.metrics.Refresh(kindData, metrics.RefreshSuccess)
	logger.InfoContext(ctx, "Refresh completed",
		"accounts", len(res.accounts),
		"transactions", len(res.transactions),
		"summary_cached", res.summary == nil,
		"categories_cached", res.categories == nil)
}

// fetchAll issues every request of one cycle concurrently and waits for all
// of them. The first failure cancels the rest.
func (p *Provider) fetchAll(ctx context.Context, wantSummary, wantCategories bool) (fetched, error) {
	var res fetched
	now := p.clock.Now()
	month := core.MonthRange(now)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := p.api.ListAccounts(gctx)
		res.accounts = v
		return err
	})
	g.Go(func() error {
		v, err := p.api.ListTransactions(gctx, month, "")
		res.transactions = v
		return err
	})
	g.Go(func() error {
		v, err := p.api.IncomeExpense(gctx, core.Monthly, now)
		res.incomeExpense = v
		return err
	})
	if wantSummary {
		g.Go(func() error {
			v, err := p.api.AccountSummary(gctx)
			if err == nil {
				res.summary = &v
			}
			return err
		})
	}
	if wantCategories {
		g.Go(func() error {
			v, err := p.api.ListCategories(gctx)
			if err == nil && v == nil {
				v = []core.Category{}
			}
			res.categories = v
			return err
		})
	}
	err := g.Wait()
	return res, err
}

func (p *Provider) writeThrough(ctx context.Context, key string, value any) {
	if err := p.cache.Set(ctx, key, value); err != nil {
		p.logger.WarnContext(ctx, "Failed to write cache entry", log.FieldCacheKey, key, log.FieldError, err)
	}
}

// RefreshCategories reloads only the categories. An empty result is retried
// once after the empty-retry delay and then accepted; a failure is retried
// once after the failure-retry delay and then falls back to the cached list,
// or to an empty list. It returns when the flow has finished or ctx is done.
func (p *Provider) RefreshCategories(ctx context.Context) {
	p.mu.Lock()
	p.catGen++
	gen := p.catGen
	p.mu.Unlock()

	logger := p.logger.With(log.FieldGeneration, gen)
	for attempt := 1; ; attempt++ {
		cats, err := p.api.ListCategories(ctx)
		if err == nil && (len(cats) > 0 || attempt > 1) {
			if cats == nil {
				cats = []core.Category{}
			}
			if p.commitCategories(ctx, gen, cats, len(cats) > 0) {
				outcome := metrics.RefreshSuccess
				if len(cats) == 0 {
					outcome = metrics.RefreshEmpty
				}
				p.metrics.Refresh(kindCategories, outcome)
				logger.InfoContext(ctx, "Categories refreshed", log.FieldCount, len(cats), log.FieldAttempt, attempt)
			}
			return
		}
		if err != nil && attempt > 1 {
			p.categoriesFailed(ctx, gen, err)
			return
		}

		delay := p.emptyRetryDelay
		if err != nil {
			delay = p.failureRetryDelay
			logger.WarnContext(ctx, "Categories fetch failed, retrying", log.FieldAttempt, attempt, log.FieldError, err)
		} else {
			logger.InfoContext(ctx, "Categories empty, retrying", log.FieldAttempt, attempt)
		}
		if !p.wait(ctx, delay) {
			logger.DebugContext(ctx, "Categories retry abandoned", log.FieldError, ctx.Err())
			return
		}
		if p.categoriesSuperseded(gen) {
			p.metrics.Refresh(kindCategories, metrics.RefreshSuperseded)
			return
		}
	}
}

func (p *Provider) categoriesFailed(ctx context.Context, gen uint64, err error) {
	fallback, ok := cache.GetJSON[[]core.Category](ctx, p.cache, cache.KeyCategories)
	if !ok || fallback == nil {
		fallback = []core.Category{}
	}
	if !p.commitCategories(ctx, gen, fallback, false) {
		return
	}
	outcome := metrics.RefreshError
	if ok {
		outcome = metrics.RefreshFallback
	}
	p.metrics.Refresh(kindCategories, outcome)
	p.logger.ErrorContext(ctx, "Categories refresh failed", log.FieldError, err, "cached", ok)
	p.toast(ctx, notify.LevelError, api.Message(err))
}

// commitCategories publishes cats if gen is still the newest categories
// generation and reports whether it did.
func (p *Provider) commitCategories(ctx context.Context, gen uint64, cats []core.Category, writeThrough bool) bool {
	p.commitMu.Lock()
	p.mu.Lock()
	if gen != p.catGen {
		p.mu.Unlock()
		p.commitMu.Unlock()
		p.metrics.Refresh(kindCategories, metrics.RefreshSuperseded)
		return false
	}
	p.snap.Categories = cats
	p.mu.Unlock()
	if writeThrough {
		p.writeThrough(ctx, cache.KeyCategories, cats)
	}
	p.commitMu.Unlock()
	p.changed()
	return true
}

func (p *Provider) categoriesSuperseded(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return gen != p.catGen
}

func (p *Provider) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-p.clock.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// ClearCategoriesCache evicts the cached categories and empties the field.
// In-flight category results started before the call are dropped.
func (p *Provider) ClearCategoriesCache(ctx context.Context) {
	p.commitMu.Lock()
	p.mu.Lock()
	p.catGen++
	p.snap.Categories = []core.Category{}
	p.mu.Unlock()
	if err := p.cache.Remove(ctx, cache.KeyCategories); err != nil {
		p.logger.WarnContext(ctx, "Failed to evict categories", log.FieldError, err)
	}
	p.commitMu.Unlock()
	p.changed()
}
