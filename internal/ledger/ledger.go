// Package ledger moves funds between an account wallet and a project's
// funding pool.
//
// Every operation runs as an optimistic read-validate-mutate-commit loop:
// both records are loaded fresh on each attempt, validated against that fresh
// state, and committed with a version check. A losing concurrent attempt
// therefore sees the winner's writes before it decides, which keeps a
// project's committed amount at or under its ceiling. Attempts touching
// disjoint accounts and projects never contend.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"sourverse/internal/core"
	applog "sourverse/internal/log"
	"sourverse/internal/store"
)

const (
	DefaultMaxAttempts = 5
	baseBackoff        = 2 * time.Millisecond
	maxBackoff         = 50 * time.Millisecond
)

// Ledger applies investments and wallet top-ups.
type Ledger struct {
	accounts    store.AccountStore
	projects    store.ProjectStore
	committer   store.TransferCommitter
	maxAttempts int
	backoff     func(attempt int) time.Duration
	now         func() time.Time
	logger      *applog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMaxAttempts bounds how many times a conflicting commit is retried.
func WithMaxAttempts(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// WithBackoff replaces the delay applied before retry attempt n (n >= 1).
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(l *Ledger) {
		if fn != nil {
			l.backoff = fn
		}
	}
}

// WithClock sets the time source stamped on journal records.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger; records are tagged with the ledger component.
func WithLogger(logger *applog.Logger) Option {
	return func(l *Ledger) {
		l.logger = applog.OrDefault(logger, applog.ComponentLedger)
	}
}

// New builds a ledger over the given repository.
func New(repo interface {
	store.AccountStore
	store.ProjectStore
	store.TransferCommitter
}, opts ...Option) *Ledger {
	l := &Ledger{
		accounts:    repo,
		projects:    repo,
		committer:   repo,
		maxAttempts: DefaultMaxAttempts,
		backoff:     jitteredBackoff,
		now:         time.Now,
		logger:      applog.OrDefault(nil, applog.ComponentLedger),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// InvestResult is the outcome of a successful Invest.
type InvestResult struct {
	Balance    decimal.Decimal
	Investment core.Investment
}

// Invest debits amount from the account and credits it to the project.
//
// Failures are checked in this order and leave both records untouched:
// non-positive amount (core.ErrValidation), missing account or project
// (core.ErrNotFound), balance below amount (core.ErrInsufficientFunds),
// amount above the remaining capacity (core.ErrCapacityExceeded). Version
// conflicts are retried with fresh reads; when attempts run out the returned
// error still wraps core.ErrConflict.
func (l *Ledger) Invest(ctx context.Context, accountID, projectID string, amount decimal.Decimal) (InvestResult, error) {
	if err := core.ValidateAmount(amount); err != nil {
		return InvestResult{}, err
	}

	var res InvestResult
	err := l.retry(ctx, applog.OpInvest, func(ctx context.Context) error {
		var err error
		res, err = l.tryInvest(ctx, accountID, projectID, amount)
		return err
	})
	if err != nil {
		return InvestResult{}, err
	}

	l.logger.InfoContext(ctx, "Investment committed",
		applog.NewFields().
			WithTransfer(accountID, projectID, amount.String()).
			WithBalances(res.Balance.String(), res.Investment.CurrentInvestment.String()).
			WithOperation(applog.OpInvest).
			ToSlice()...)
	return res, nil
}

func (l *Ledger) tryInvest(ctx context.Context, accountID, projectID string, amount decimal.Decimal) (InvestResult, error) {
	account, err := l.accounts.LoadAccount(ctx, accountID)
	if err != nil {
		return InvestResult{}, classify("load account", err)
	}
	project, err := l.projects.LoadProject(ctx, projectID)
	if err != nil {
		return InvestResult{}, classify("load project", err)
	}

	if account.Balance.LessThan(amount) {
		return InvestResult{}, fmt.Errorf("%w: balance %s, requested %s",
			core.ErrInsufficientFunds, account.Balance, amount)
	}
	if project.CurrentInvestment.Add(amount).GreaterThan(project.TotalInvestment) {
		return InvestResult{}, fmt.Errorf("%w: remaining %s, requested %s",
			core.ErrCapacityExceeded, project.Remaining(), amount)
	}

	account.Balance = account.Balance.Sub(amount)
	project.CurrentInvestment = project.CurrentInvestment.Add(amount)
	project.AddInvestor(account.ID)
	account.AddInvestment(project.ID)

	if err := l.committer.CommitTransfer(ctx, account, project); err != nil {
		return InvestResult{}, classify("commit transfer", err)
	}

	return InvestResult{
		Balance: account.Balance,
		Investment: core.Investment{
			AccountID:         account.ID,
			ProjectID:         project.ID,
			Amount:            amount,
			Balance:           account.Balance,
			CurrentInvestment: project.CurrentInvestment,
			At:                l.now().UTC(),
		},
	}, nil
}

// TopUp credits amount to the account wallet and returns the new balance.
func (l *Ledger) TopUp(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := core.ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}

	var balance decimal.Decimal
	err := l.retry(ctx, applog.OpTopUp, func(ctx context.Context) error {
		account, err := l.accounts.LoadAccount(ctx, accountID)
		if err != nil {
			return classify("load account", err)
		}
		account.Balance = account.Balance.Add(amount)
		if err := l.accounts.SaveAccount(ctx, account); err != nil {
			return classify("save account", err)
		}
		balance = account.Balance
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	l.logger.InfoContext(ctx, "Wallet topped up",
		applog.NewFields().
			WithTransfer(accountID, "", amount.String()).
			WithBalances(balance.String(), "").
			WithOperation(applog.OpTopUp).
			ToSlice()...)
	return balance, nil
}

// retry runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent.
func (l *Ledger) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, l.backoff(attempt)); err != nil {
				return err
			}
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !core.IsRetryable(err) {
			return err
		}
		lastErr = err
		l.logger.DebugContext(ctx, "Commit conflict, retrying",
			applog.FieldOperation, op,
			applog.FieldAttempt, attempt+1,
			applog.FieldError, err)
	}
	l.logger.WarnContext(ctx, "Retries exhausted",
		applog.FieldOperation, op,
		applog.FieldErrorType, applog.ErrorTypeConflict,
		applog.FieldAttempt, l.maxAttempts,
		applog.FieldError, lastErr)
	return fmt.Errorf("%s: gave up after %d attempts: %w", op, l.maxAttempts, lastErr)
}

// classify keeps taxonomy errors as they are and treats anything else coming
// out of a store as a collaborator failure.
func classify(op string, err error) error {
	for _, known := range []error{core.ErrNotFound, core.ErrConflict, core.ErrStorageUnavailable, core.ErrValidation} {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return core.Unavailable(op, err)
}

func jitteredBackoff(attempt int) time.Duration {
	d := baseBackoff << (attempt - 1)
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	return d/2 + rand.N(d/2+1)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
