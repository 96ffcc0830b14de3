package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"sourverse/internal/auth"
	"sourverse/internal/core"
	"sourverse/internal/ledger"
	applog "sourverse/internal/log"
	"sourverse/internal/metrics"
	"sourverse/internal/store"
)

type RegisterInput struct {
	Email             string
	Password          string
	Name              string
	Location          string
	EnergyPreferences string
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// AccountService covers registration, login, profile and wallet reads, and
// wallet top-ups.
type AccountService struct {
	accounts store.AccountStore
	projects store.ProjectStore
	ledger   *ledger.Ledger
	issuer   *auth.Issuer
	metrics  *metrics.Metrics
	logger   *applog.Logger
	hashCost int
}

type AccountOption func(*AccountService)

// WithHashCost sets the bcrypt cost; tests use bcrypt.MinCost.
func WithHashCost(cost int) AccountOption {
	return func(s *AccountService) { s.hashCost = cost }
}

func NewAccountService(repo store.Repository, l *ledger.Ledger, issuer *auth.Issuer, m *metrics.Metrics, logger *applog.Logger, opts ...AccountOption) *AccountService {
	s := &AccountService{
		accounts: repo,
		projects: repo,
		ledger:   l,
		issuer:   issuer,
		metrics:  m,
		logger:   applog.OrDefault(logger, applog.ComponentAuth),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account with a zero balance.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (core.Account, error) {
	email := strings.TrimSpace(in.Email)
	if !strings.Contains(email, "@") {
		return core.Account{}, fmt.Errorf("%w: invalid email", core.ErrValidation)
	}
	if in.Password == "" {
		return core.Account{}, fmt.Errorf("%w: password required", core.ErrValidation)
	}

	a := core.Account{
		ID:                uuid.NewString(),
		Email:             email,
		Name:              strings.TrimSpace(in.Name),
		Location:          strings.TrimSpace(in.Location),
		EnergyPreferences: strings.TrimSpace(in.EnergyPreferences),
		Balance:           decimal.Zero,
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, fmt.Errorf("%w: %w", core.ErrValidation, err)
	}

	hash, err := auth.HashPassword(in.Password, s.hashCost)
	if err != nil {
		return core.Account{}, err
	}
	a.PasswordHash = hash

	if err := s.accounts.CreateAccount(ctx, a); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return core.Account{}, fmt.Errorf("%w: user already exists", core.ErrValidation)
		}
		return core.Account{}, err
	}
	a.Version = 1

	s.logger.InfoContext(ctx, "Account registered", applog.FieldAccountID, a.ID)
	return a, nil
}

// Login checks the password and issues a session token. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, email, password string) (Session, error) {
	a, err := s.accounts.FindAccountByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		return Session{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := auth.CheckPassword(a.PasswordHash, password); err != nil {
		s.logger.WarnContext(ctx, "Login rejected", applog.FieldAccountID, a.ID)
		return Session{}, err
	}

	token, exp, err := s.issuer.Issue(a.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, UserID: a.ID, ExpiresAt: exp}, nil
}

func (s *AccountService) Profile(ctx context.Context, id string) (core.Account, error) {
	if strings.TrimSpace(id) == "" {
		return core.Account{}, fmt.Errorf("%w: userId required", core.ErrValidation)
	}
	return s.accounts.LoadAccount(ctx, id)
}

func (s *AccountService) Balance(ctx context.Context, id string) (decimal.Decimal, error) {
	a, err := s.Profile(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return a.Balance, nil
}

// TopUp credits the wallet and returns the new balance.
func (s *AccountService) TopUp(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	balance, err := s.ledger.TopUp(ctx, id, amount)
	s.metrics.ObserveTopUp(resultLabel(err))
	return balance, err
}

// Investments returns the projects the account funded, in first-investment
// order.
func (s *AccountService) Investments(ctx context.Context, id string) ([]core.Project, error) {
	a, err := s.Profile(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]core.Project, 0, len(a.Investments))
	for _, pid := range a.Investments {
		p, err := s.projects.LoadProject(ctx, pid)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
