package ledger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"sourverse/internal/core"
	applog "sourverse/internal/log"
	"sourverse/internal/store/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T, balances map[string]string, capacity string) (*memory.Store, *Ledger) {
	t.Helper()
	repo := memory.New()
	ctx := context.Background()
	for id, bal := range balances {
		require.NoError(t, repo.CreateAccount(ctx, core.Account{
			ID: id, Email: id + "@example.com", Name: id, Location: "here", Balance: d(bal),
		}))
	}
	require.NoError(t, repo.CreateProject(ctx, core.Project{
		ID: "P", Name: "Solar", Location: "here", TotalInvestment: d(capacity),
	}))
	l := New(repo,
		WithLogger(applog.Discard()),
		WithMaxAttempts(50),
		WithBackoff(func(int) time.Duration { return 0 }))
	return repo, l
}

func TestInvestDebitsAndCredits(t *testing.T) {
	repo, l := newFixture(t, map[string]string{"A": "100"}, "100")
	ctx := context.Background()

	res, err := l.Invest(ctx, "A", "P", d("30.5"))
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(d("69.5")), "balance %s", res.Balance)
	assert.Equal(t, "A", res.Investment.AccountID)
	assert.True(t, res.Investment.CurrentInvestment.Equal(d("30.5")))

	account, _ := repo.LoadAccount(ctx, "A")
	project, _ := repo.LoadProject(ctx, "P")
	assert.True(t, account.Balance.Equal(d("69.5")))
	assert.True(t, project.CurrentInvestment.Equal(d("30.5")))
	assert.Equal(t, []string{"P"}, account.Investments)
	assert.Equal(t, []string{"A"}, project.Investors)
}

func TestInvestLogsResultingBalances(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	require.NoError(t, repo.CreateAccount(ctx, core.Account{
		ID: "A", Email: "a@example.com", Name: "A", Location: "here", Balance: d("100"),
	}))
	require.NoError(t, repo.CreateProject(ctx, core.Project{
		ID: "P", Name: "Solar", Location: "here", TotalInvestment: d("100"),
	}))

	var buf bytes.Buffer
	logger := applog.New(applog.Config{Handler: slog.NewTextHandler(&buf, nil)})
	l := New(repo, WithLogger(logger))

	_, err := l.Invest(ctx, "A", "P", d("25"))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "component=ledger")
	assert.Contains(t, out, "operation=invest")
	assert.Contains(t, out, "balance=75")
	assert.Contains(t, out, "current_investment=25")
}

func TestInvestStampsJournalRecordWithClock(t *testing.T) {
	repo, _ := newFixture(t, map[string]string{"A": "100"}, "100")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	l := New(repo, WithLogger(applog.Discard()), WithClock(func() time.Time { return at }))

	res, err := l.Invest(context.Background(), "A", "P", d("10"))
	require.NoError(t, err)
	assert.True(t, res.Investment.At.Equal(at))
	assert.Equal(t, time.UTC, res.Investment.At.Location())
}

func TestInvestTwiceKeepsSingleMembership(t *testing.T) {
	repo, l := newFixture(t, map[string]string{"A": "100"}, "100")
	ctx := context.Background()

	_, err := l.Invest(ctx, "A", "P", d("10"))
	require.NoError(t, err)
	_, err = l.Invest(ctx, "A", "P", d("15"))
	require.NoError(t, err)

	account, _ := repo.LoadAccount(ctx, "A")
	project, _ := repo.LoadProject(ctx, "P")
	assert.Equal(t, []string{"P"}, account.Investments)
	assert.Equal(t, []string{"A"}, project.Investors)
	assert.True(t, project.CurrentInvestment.Equal(d("25")))
}

func TestInvestRejectsNonPositiveAmounts(t *testing.T) {
	repo, l := newFixture(t, map[string]string{"A": "100"}, "100")
	ctx := context.Background()

	for _, amt := range []string{"0", "-1", "-0.01"} {
		_, err := l.Invest(ctx, "A", "P", d(amt))
		require.ErrorIs(t, err, core.ErrValidation, "amount %s", amt)
	}
	// Validation comes before existence checks.
	_, err := l.Invest(ctx, "missing", "missing", decimal.Zero)
	require.ErrorIs(t, err, core.ErrValidation)

	account, _ := repo.LoadAccount(ctx, "A")
	project, _ := repo.LoadProject(ctx, "P")
	assert.EqualValues(t, 1, account.Version)
	assert.EqualValues(t, 1, project.Version)
}

func TestInvestNotFound(t *testing.T) {
	_, l := newFixture(t, map[string]string{"A": "100"}, "100")
	ctx := context.Background()

	_, err := l.Invest(ctx, "nobody", "P", d("1"))
	require.ErrorIs(t, err, core.ErrNotFound)
	_, err = l.Invest(ctx, "A", "nothing", d("1"))
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestInvestInsufficientFundsBeforeCapacity(t *testing.T) {
	repo, l := newFixture(t, map[string]string{"A": "10"}, "5")
	ctx := context.Background()

	// Both checks fail; funds are reported first.
	_, err := l.Invest(ctx, "A", "P", d("20"))
	require.ErrorIs(t, err, core.ErrInsufficientFunds)

	account, _ := repo.LoadAccount(ctx, "A")
	assert.True(t, account.Balance.Equal(d("10")))
}

func TestInvestCapacityByFractionalUnit(t *testing.T) {
	repo, l := newFixture(t, map[string]string{"A": "1000"}, "100")
	ctx := context.Background()

	_, err := l.Invest(ctx, "A", "P", d("60"))
	require.NoError(t, err)

	_, err = l.Invest(ctx, "A", "P", d("40.000001"))
	require.ErrorIs(t, err, core.ErrCapacityExceeded)

	_, err = l.Invest(ctx, "A", "P", d("40"))
	require.NoError(t, err)

	project, _ := repo.LoadProject(ctx, "P")
	assert.True(t, project.CurrentInvestment.Equal(d("100")))

	_, err = l.Invest(ctx, "A", "P", d("0.000001"))
	require.ErrorIs(t, err, core.ErrCapacityExceeded)
}

func TestConcurrentCompetitorsForLastCapacity(t *testing.T) {
	repo, l := newFixture(t, map[string]string{"A": "100", "B": "100"}, "100")
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		results = make(map[string]error)
		mu      sync.Mutex
		start   = make(chan struct{})
	)
	for _, id := range []string{"A", "B"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-start
			_, err := l.Invest(ctx, id, "P", d("60"))
			mu.Lock()
			results[id] = err
			mu.Unlock()
		}(id)
	}
	close(start)
	wg.Wait()

	var winner, loser string
	for id, err := range results {
		if err == nil {
			winner = id
		} else {
			require.ErrorIs(t, err, core.ErrCapacityExceeded)
			loser = id
		}
	}
	require.NotEmpty(t, winner, "exactly one investment must succeed")
	require.NotEmpty(t, loser, "exactly one investment must fail")

	project, _ := repo.LoadProject(ctx, "P")
	require.True(t, project.CurrentInvestment.Equal(d("60")))

	_, err := l.Invest(ctx, loser, "P", d("40"))
	require.NoError(t, err)

	project, _ = repo.LoadProject(ctx, "P")
	require.True(t, project.CurrentInvestment.Equal(d("100")))

	_, err = l.Invest(ctx, winner, "P", d("0.01"))
	require.ErrorIs(t, err, core.ErrCapacityExceeded)
}

func TestConcurrentInvestmentsNeverExceedCapacity(t *testing.T) {
	balances := map[string]string{}
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, id := range ids {
		balances[id] = "50"
	}
	repo, l := newFixture(t, balances, "137.5")
	ctx := context.Background()

	var (
		mu        sync.Mutex
		succeeded = decimal.Zero
		perAcct   = map[string]decimal.Decimal{}
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		for i := 0; i < 6; i++ {
			id := id
			amount := d("7.25")
			g.Go(func() error {
				_, err := l.Invest(gctx, id, "P", amount)
				switch {
				case err == nil:
					mu.Lock()
					succeeded = succeeded.Add(amount)
					perAcct[id] = perAcct[id].Add(amount)
					mu.Unlock()
				case errors.Is(err, core.ErrCapacityExceeded),
					errors.Is(err, core.ErrInsufficientFunds),
					errors.Is(err, core.ErrConflict):
				default:
					return err
				}
				return nil
			})
		}
	}
	require.NoError(t, g.Wait())

	project, _ := repo.LoadProject(ctx, "P")
	assert.True(t, project.CurrentInvestment.LessThanOrEqual(project.TotalInvestment))
	assert.True(t, project.CurrentInvestment.Equal(succeeded),
		"current %s != sum of successes %s", project.CurrentInvestment, succeeded)

	for _, id := range ids {
		account, _ := repo.LoadAccount(ctx, id)
		assert.False(t, account.Balance.IsNegative())
		assert.True(t, account.Balance.Equal(d("50").Sub(perAcct[id])), "account %s", id)
		invested := !perAcct[id].IsZero()
		assert.Equal(t, invested, account.HasInvestment("P"))
		assert.Equal(t, invested, project.HasInvestor(id))
		assert.LessOrEqual(t, len(account.Investments), 1)
	}
	assert.Len(t, project.Investors, len(perAcct))
}

// flakyRepo wraps the memory store and injects commit failures.
type flakyRepo struct {
	*memory.Store
	conflicts atomic.Int32
	fail      error
	commits   atomic.Int32
}

func (f *flakyRepo) CommitTransfer(ctx context.Context, a core.Account, p core.Project) error {
	f.commits.Add(1)
	if f.fail != nil {
		return f.fail
	}
	if f.conflicts.Add(-1) >= 0 {
		return core.Conflict("project", p.ID)
	}
	return f.Store.CommitTransfer(ctx, a, p)
}

func TestConflictIsRetriedWithFreshState(t *testing.T) {
	repo, _ := newFixture(t, map[string]string{"A": "100"}, "100")
	flaky := &flakyRepo{Store: repo}
	flaky.conflicts.Store(2)
	l := New(flaky, WithLogger(applog.Discard()), WithBackoff(func(int) time.Duration { return 0 }))

	res, err := l.Invest(context.Background(), "A", "P", d("10"))
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(d("90")))
	assert.EqualValues(t, 3, flaky.commits.Load())
}

func TestConflictExhaustionStaysRetryable(t *testing.T) {
	repo, _ := newFixture(t, map[string]string{"A": "100"}, "100")
	flaky := &flakyRepo{Store: repo}
	flaky.conflicts.Store(1000)
	l := New(flaky, WithLogger(applog.Discard()), WithMaxAttempts(3), WithBackoff(func(int) time.Duration { return 0 }))

	_, err := l.Invest(context.Background(), "A", "P", d("10"))
	require.ErrorIs(t, err, core.ErrConflict)
	assert.True(t, core.IsRetryable(err))
	assert.EqualValues(t, 3, flaky.commits.Load())
}

func TestStorageFailureIsNotRetried(t *testing.T) {
	repo, _ := newFixture(t, map[string]string{"A": "100"}, "100")
	flaky := &flakyRepo{Store: repo, fail: errors.New("disk on fire")}
	l := New(flaky, WithLogger(applog.Discard()), WithBackoff(func(int) time.Duration { return 0 }))

	_, err := l.Invest(context.Background(), "A", "P", d("10"))
	require.ErrorIs(t, err, core.ErrStorageUnavailable)
	assert.EqualValues(t, 1, flaky.commits.Load())
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	repo, _ := newFixture(t, map[string]string{"A": "100"}, "100")
	flaky := &flakyRepo{Store: repo}
	flaky.conflicts.Store(1000)
	l := New(flaky, WithLogger(applog.Discard()), WithBackoff(func(int) time.Duration { return time.Hour }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := l.Invest(ctx, "A", "P", d("10"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTopUp(t *testing.T) {
	repo, l := newFixture(t, map[string]string{"A": "1.5"}, "100")
	ctx := context.Background()

	bal, err := l.TopUp(ctx, "A", d("2.25"))
	require.NoError(t, err)
	assert.True(t, bal.Equal(d("3.75")))

	_, err = l.TopUp(ctx, "A", d("0"))
	require.ErrorIs(t, err, core.ErrValidation)
	_, err = l.TopUp(ctx, "ghost", d("1"))
	require.ErrorIs(t, err, core.ErrNotFound)

	account, _ := repo.LoadAccount(ctx, "A")
	assert.True(t, account.Balance.Equal(d("3.75")))
}

func TestConcurrentTopUpsAllLand(t *testing.T) {
	repo, l := newFixture(t, map[string]string{"A": "0"}, "100")
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, err := l.TopUp(ctx, "A", d("1"))
			return err
		})
	}
	require.NoError(t, g.Wait())

	account, _ := repo.LoadAccount(ctx, "A")
	assert.True(t, account.Balance.Equal(d("20")), "balance %s", account.Balance)
}

func TestJitteredBackoffBounds(t *testing.T) {
	for attempt := 1; attempt < 20; attempt++ {
		got := jitteredBackoff(attempt)
		assert.Greater(t, got, time.Duration(0))
		assert.LessOrEqual(t, got, maxBackoff)
	}
}
