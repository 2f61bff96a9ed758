package finance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsession/internal/api"
	"finsession/internal/auth"
	"finsession/internal/cache"
	"finsession/internal/core"
	"finsession/internal/notify"
	"finsession/internal/storage"
)

type harness struct {
	p      *Provider
	api    *fakeAPI
	store  *cache.Store
	auth   *auth.Service
	clock  *clockwork.FakeClock
	toasts *notify.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC))
	kv := storage.NewMemoryKV(64, clock)
	store := cache.NewStore(kv, cache.Options{Clock: clock})
	sessions := auth.NewService(kv, auth.Options{Clock: clock})
	fake := newFakeAPI()
	toasts := notify.NewRecorder(0)
	p := NewProvider(fake, sessions, store, Options{Notifier: toasts, Clock: clock})
	return &harness{p: p, api: fake, store: store, auth: sessions, clock: clock, toasts: toasts}
}

func (h *harness) cachedCategories(t *testing.T) ([]core.Category, bool) {
	t.Helper()
	return cache.GetJSON[[]core.Category](context.Background(), h.store, cache.KeyCategories)
}

func runAsync(fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	return done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for refresh")
	}
}

func TestRefreshDataPopulatesSnapshotAndCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.p.RefreshData(ctx, false)

	snap := h.p.Snapshot()
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Error)
	assert.Equal(t, h.api.accounts, snap.Accounts)
	assert.Equal(t, h.api.transactions, snap.Transactions)
	assert.Equal(t, h.api.categories, snap.Categories)
	require.NotNil(t, snap.Summary)
	assert.Equal(t, h.api.summary, *snap.Summary)
	require.NotNil(t, snap.IncomeExpense)
	assert.Equal(t, h.api.incomeExp, *snap.IncomeExpense)

	cached, ok := h.cachedCategories(t)
	require.True(t, ok)
	assert.Equal(t, h.api.categories, cached)
	summary, ok := cache.GetJSON[core.Summary](ctx, h.store, cache.KeySummary)
	require.True(t, ok)
	assert.Equal(t, h.api.summary, summary)
}

func TestRefreshDataDoesNotCacheEmptyCategories(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.api.onCategories = func(context.Context, int) ([]core.Category, error) {
		return []core.Category{}, nil
	}

	h.p.RefreshData(ctx, false)
	snap := h.p.Snapshot()
	assert.NotNil(t, snap.Categories)
	assert.Empty(t, snap.Categories)
	_, ok := h.cachedCategories(t)
	assert.False(t, ok, "empty list is not cached")

	h.p.RefreshData(ctx, false)
	assert.Equal(t, 2, h.api.Calls("categories"), "empty list is fetched again")
}

func TestRefreshDataServesCachedEntries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.p.RefreshData(ctx, false)
	h.p.RefreshData(ctx, false)

	assert.Equal(t, 2, h.api.Calls("accounts"))
	assert.Equal(t, 2, h.api.Calls("transactions"))
	assert.Equal(t, 2, h.api.Calls("income_expense"))
	assert.Equal(t, 1, h.api.Calls("summary"))
	assert.Equal(t, 1, h.api.Calls("categories"))
	assert.Equal(t, h.api.categories, h.p.Snapshot().Categories)

	h.clock.Advance(5*time.Minute + time.Second)
	h.p.RefreshData(ctx, false)
	assert.Equal(t, 2, h.api.Calls("summary"), "stale summary must be refetched")
	assert.Equal(t, 2, h.api.Calls("categories"), "stale categories must be refetched")
}

func TestRefreshDataForceNeverServesCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	stale := core.Summary{NetBalance: core.Money{Cents: 100}}
	require.NoError(t, h.store.Set(ctx, cache.KeySummary, stale))
	require.NoError(t, h.store.Set(ctx, cache.KeyCategories, []core.Category{{ID: "old"}}))

	h.p.RefreshData(ctx, true)

	assert.Equal(t, 1, h.api.Calls("summary"))
	assert.Equal(t, 1, h.api.Calls("categories"))
	snap := h.p.Snapshot()
	assert.Equal(t, h.api.summary, *snap.Summary)
	assert.Equal(t, h.api.categories, snap.Categories)
}

func TestRefreshDataFallsBackToCachedCategories(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cached := []core.Category{{ID: "c9", Name: "Cached"}}

	// Another writer fills the cache while the categories request fails.
	h.api.onCategories = func(ctx context.Context, _ int) ([]core.Category, error) {
		if err := h.store.Set(ctx, cache.KeyCategories, cached); err != nil {
			return nil, err
		}
		return nil, errUnavailable
	}

	h.p.RefreshData(ctx, false)

	snap := h.p.Snapshot()
	assert.Equal(t, cached, snap.Categories)
	assert.Equal(t, "Service unavailable", snap.Error)
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.Accounts, "failed cycle must not publish other fields")

	toasts := h.toasts.Drain()
	require.Len(t, toasts, 1)
	assert.Equal(t, notify.LevelError, toasts[0].Level)
	assert.Equal(t, "Service unavailable", toasts[0].Message)
}

func TestRefreshDataFailureKeepsPreviousFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.p.RefreshData(ctx, false)
	before := h.p.Snapshot()

	h.api.onAccounts = func(context.Context, int) ([]core.Account, error) {
		return nil, errUnavailable
	}
	h.p.RefreshData(ctx, false)

	after := h.p.Snapshot()
	assert.Equal(t, before.Accounts, after.Accounts)
	assert.Equal(t, before.Transactions, after.Transactions)
	assert.Equal(t, before.Summary, after.Summary)
	assert.Equal(t, before.Categories, after.Categories)
	assert.Equal(t, "Service unavailable", after.Error)
	assert.False(t, after.Loading)

	h.api.onAccounts = nil
	h.p.RefreshData(ctx, false)
	assert.Empty(t, h.p.Snapshot().Error, "success clears the error")
}

func TestOverlappingRefreshLastCallerWins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	h.api.onAccounts = func(ctx context.Context, call int) ([]core.Account, error) {
		if call == 1 {
			close(started)
			<-release
			return []core.Account{{ID: "first"}}, nil
		}
		return []core.Account{{ID: "second"}}, nil
	}

	first := runAsync(func() { h.p.RefreshData(ctx, false) })
	<-started
	assert.True(t, h.p.Snapshot().Loading)

	h.p.RefreshData(ctx, false)
	assert.Equal(t, "second", h.p.Snapshot().Accounts[0].ID)
	assert.False(t, h.p.Snapshot().Loading)

	close(release)
	waitDone(t, first)

	snap := h.p.Snapshot()
	require.Len(t, snap.Accounts, 1)
	assert.Equal(t, "second", snap.Accounts[0].ID)
	assert.False(t, snap.Loading)
}

func TestSupersededFailureIsDropped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	h.api.onAccounts = func(ctx context.Context, call int) ([]core.Account, error) {
		if call == 1 {
			close(started)
			<-release
			return nil, errUnavailable
		}
		return h.api.accounts, nil
	}

	first := runAsync(func() { h.p.RefreshData(ctx, false) })
	<-started
	h.p.RefreshData(ctx, false)
	close(release)
	waitDone(t, first)

	assert.Empty(t, h.p.Snapshot().Error)
	assert.Empty(t, h.toasts.Drain())
}

func TestRefreshCategoriesEmptyRetriesExactlyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.api.onCategories = func(context.Context, int) ([]core.Category, error) {
		return []core.Category{}, nil
	}

	done := runAsync(func() { h.p.RefreshCategories(ctx) })
	h.clock.BlockUntil(1)
	assert.Equal(t, 1, h.api.Calls("categories"))

	h.clock.Advance(time.Second)
	waitDone(t, done)

	assert.Equal(t, 2, h.api.Calls("categories"))
	snap := h.p.Snapshot()
	assert.NotNil(t, snap.Categories)
	assert.Empty(t, snap.Categories)
	_, ok := h.cachedCategories(t)
	assert.False(t, ok, "empty result is not cached")
	assert.Empty(t, h.toasts.Drain(), "empty is not an error")
}

func TestRefreshCategoriesEmptyThenFilled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.api.onCategories = func(_ context.Context, call int) ([]core.Category, error) {
		if call == 1 {
			return nil, nil
		}
		return h.api.categories, nil
	}

	done := runAsync(func() { h.p.RefreshCategories(ctx) })
	h.clock.BlockUntil(1)
	h.clock.Advance(time.Second)
	waitDone(t, done)

	assert.Equal(t, h.api.categories, h.p.Snapshot().Categories)
	cached, ok := h.cachedCategories(t)
	require.True(t, ok)
	assert.Equal(t, h.api.categories, cached)
}

func TestRefreshCategoriesFailureUsesLongerDelayThenCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cached := []core.Category{{ID: "c9", Name: "Cached"}}
	require.NoError(t, h.store.Set(ctx, cache.KeyCategories, cached))
	h.api.onCategories = func(context.Context, int) ([]core.Category, error) {
		return nil, errUnavailable
	}

	done := runAsync(func() { h.p.RefreshCategories(ctx) })
	h.clock.BlockUntil(1)
	h.clock.Advance(time.Second)
	assert.Equal(t, 1, h.api.Calls("categories"), "failure retry waits longer than the empty retry")

	h.clock.Advance(time.Second)
	waitDone(t, done)

	assert.Equal(t, 2, h.api.Calls("categories"))
	assert.Equal(t, cached, h.p.Snapshot().Categories)
	toasts := h.toasts.Drain()
	require.Len(t, toasts, 1)
	assert.Equal(t, "Service unavailable", toasts[0].Message)
}

func TestRefreshCategoriesFailureWithoutCacheEmpties(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.api.onCategories = func(context.Context, int) ([]core.Category, error) {
		return nil, errUnavailable
	}

	done := runAsync(func() { h.p.RefreshCategories(ctx) })
	h.clock.BlockUntil(1)
	h.clock.Advance(2 * time.Second)
	waitDone(t, done)

	snap := h.p.Snapshot()
	assert.NotNil(t, snap.Categories)
	assert.Empty(t, snap.Categories)
}

func TestRefreshCategoriesFailureThenSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.api.onCategories = func(_ context.Context, call int) ([]core.Category, error) {
		if call == 1 {
			return nil, errUnavailable
		}
		return h.api.categories, nil
	}

	done := runAsync(func() { h.p.RefreshCategories(ctx) })
	h.clock.BlockUntil(1)
	h.clock.Advance(2 * time.Second)
	waitDone(t, done)

	assert.Equal(t, h.api.categories, h.p.Snapshot().Categories)
	assert.Empty(t, h.toasts.Drain())
}

func TestRefreshCategoriesStopsWhenCancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.api.onCategories = func(context.Context, int) ([]core.Category, error) {
		return nil, nil
	}

	done := runAsync(func() { h.p.RefreshCategories(ctx) })
	h.clock.BlockUntil(1)
	cancel()
	waitDone(t, done)

	assert.Equal(t, 1, h.api.Calls("categories"))
	assert.Nil(t, h.p.Snapshot().Categories)
}

func TestClearCategoriesCacheDropsInFlightRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.api.onCategories = func(_ context.Context, call int) ([]core.Category, error) {
		if call == 1 {
			return nil, nil
		}
		return h.api.categories, nil
	}

	done := runAsync(func() { h.p.RefreshCategories(ctx) })
	h.clock.BlockUntil(1)
	h.p.ClearCategoriesCache(ctx)
	h.clock.Advance(time.Second)
	waitDone(t, done)

	assert.Equal(t, 1, h.api.Calls("categories"), "superseded flow does not retry")
	assert.Empty(t, h.p.Snapshot().Categories)
}

func TestClearCategoriesCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.p.RefreshData(ctx, false)
	calls := h.api.Calls("categories")

	h.p.ClearCategoriesCache(ctx)

	snap := h.p.Snapshot()
	assert.NotNil(t, snap.Categories)
	assert.Empty(t, snap.Categories)
	_, ok := h.cachedCategories(t)
	assert.False(t, ok)
	assert.Equal(t, calls, h.api.Calls("categories"), "no network call")
	assert.NotEmpty(t, snap.Accounts, "other fields untouched")
}

func TestBootstrap(t *testing.T) {
	t.Run("no persisted user", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		assert.True(t, h.p.Session(ctx).IsAuthLoading)

		h.p.Bootstrap(ctx)

		s := h.p.Session(ctx)
		assert.False(t, s.IsAuthLoading)
		assert.False(t, s.IsAuthenticated)
		assert.Nil(t, s.User)
		assert.Zero(t, h.api.Calls("accounts"))
	})

	t.Run("persisted user", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		require.NoError(t, h.auth.Login(ctx, "token", core.User{ID: "u1", Name: "Ada"}))

		h.p.Bootstrap(ctx)

		s := h.p.Session(ctx)
		assert.False(t, s.IsAuthLoading)
		assert.True(t, s.IsAuthenticated)
		assert.Equal(t, "Ada", s.User.Name)
		assert.Equal(t, 1, h.api.Calls("accounts"))
	})

	t.Run("profile without token", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		require.NoError(t, h.auth.SetUser(ctx, core.User{ID: "u1"}))

		h.p.Bootstrap(ctx)
		assert.False(t, h.p.Session(ctx).IsAuthenticated)
	})
}

func TestRestoreDoesNotFetch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.auth.Login(ctx, "token", core.User{ID: "u1"}))

	user := h.p.Restore(ctx)
	require.NotNil(t, user)
	assert.Equal(t, "u1", user.ID)
	assert.False(t, h.p.Session(ctx).IsAuthLoading)
	assert.Zero(t, h.api.Calls("accounts"))
}

func TestUpdateUserData(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.auth.SetToken(ctx, "token"))

	require.NoError(t, h.p.UpdateUserData(ctx, &core.User{ID: "u1", Name: "Ada"}))
	assert.True(t, h.p.Session(ctx).IsAuthenticated)
	assert.Equal(t, 1, h.api.Calls("accounts"))
	assert.Equal(t, "Ada", h.auth.User(ctx).Name)

	assert.ErrorIs(t, h.p.UpdateUserData(ctx, &core.User{}), ErrNoUser)
}

func TestUpdateUserDataNilLogsOut(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.auth.Login(ctx, "token", core.User{ID: "u1"}))
	h.p.Bootstrap(ctx)
	require.NotEmpty(t, h.p.Snapshot().Accounts)
	calls := h.api.Calls("accounts")

	require.NoError(t, h.p.UpdateUserData(ctx, nil))

	assert.Equal(t, Snapshot{}, h.p.Snapshot())
	s := h.p.Session(ctx)
	assert.Nil(t, s.User)
	assert.False(t, s.IsAuthenticated)
	_, hasToken := h.auth.Token(ctx)
	assert.False(t, hasToken)
	_, ok := h.cachedCategories(t)
	assert.False(t, ok)
	_, ok = h.store.Get(ctx, cache.KeySummary)
	assert.False(t, ok)
	assert.Equal(t, calls, h.api.Calls("accounts"), "logout does not refresh")
}

func TestLogoutDropsInFlightRefresh(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	h.api.onAccounts = func(ctx context.Context, call int) ([]core.Account, error) {
		close(started)
		<-release
		return h.api.accounts, nil
	}

	done := runAsync(func() { h.p.RefreshData(ctx, false) })
	<-started
	require.NoError(t, h.p.UpdateUserData(ctx, nil))
	close(release)
	waitDone(t, done)

	assert.Equal(t, Snapshot{}, h.p.Snapshot())
	_, ok := h.cachedCategories(t)
	assert.False(t, ok)
}

func TestMutationSuccessRefreshes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.p.RefreshData(ctx, false)

	in := core.TransactionInput{
		AccountID:  "a1",
		CategoryID: "c1",
		Type:       core.Expense,
		Amount:     core.Money{Cents: 1200},
		Date:       h.clock.Now(),
	}
	tx, err := h.p.CreateTransaction(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "new", tx.ID)

	assert.Equal(t, 2, h.api.Calls("accounts"))
	assert.Equal(t, 2, h.api.Calls("summary"), "summary is refetched after a balance change")
	assert.Equal(t, 1, h.api.Calls("categories"))

	toasts := h.toasts.Drain()
	require.Len(t, toasts, 1)
	assert.Equal(t, notify.LevelSuccess, toasts[0].Level)
}

func TestCategoryMutationRefreshesCategoriesOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.p.CreateCategory(ctx, core.CategoryInput{Name: "Pets", Type: core.Expense})
	require.NoError(t, err)
	assert.Equal(t, 1, h.api.Calls("categories"))
	assert.Zero(t, h.api.Calls("accounts"))
	assert.Equal(t, h.api.categories, h.p.Snapshot().Categories)
}

func TestMutationFailurePropagatesAndToasts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.api.mutationErr = &api.Error{StatusCode: 409, Message: "Account has transactions"}

	err := h.p.DeleteAccount(ctx, "a1")
	var apiErr *api.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 409, apiErr.StatusCode)

	toasts := h.toasts.Drain()
	require.Len(t, toasts, 1)
	assert.Equal(t, notify.LevelError, toasts[0].Level)
	assert.Equal(t, "Account has transactions", toasts[0].Message)
	assert.Zero(t, h.api.Calls("accounts"), "no refresh after failure")
}

func TestMutationValidationFailureIsNotToasted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.p.CreateAccount(ctx, core.AccountInput{})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")
	assert.Empty(t, h.toasts.Drain())
	assert.Zero(t, h.api.Calls("create_account"))
}

func TestOnChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var seen []Snapshot
	cancel := h.p.OnChange(func(s Snapshot) { seen = append(seen, s) })

	h.p.RefreshData(ctx, false)
	require.Len(t, seen, 2)
	assert.True(t, seen[0].Loading)
	assert.False(t, seen[1].Loading)

	cancel()
	h.p.ClearCategoriesCache(ctx)
	assert.Len(t, seen, 2)
}

func TestSnapshotIsACopy(t *testing.T) {
	h := newHarness(t)
	h.p.RefreshData(context.Background(), false)

	snap := h.p.Snapshot()
	snap.Accounts[0].Name = "mutated"
	snap.Summary.NetBalance = core.Money{}

	fresh := h.p.Snapshot()
	assert.Equal(t, "Checking", fresh.Accounts[0].Name)
	assert.Equal(t, h.api.summary, *fresh.Summary)
}
