// Package core holds the domain records, amount validation and the error
// taxonomy shared by the ledger, stores and transports.
package core

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// Account is a participant's wallet and the set of projects it funded.
	Account struct {
		ID                string
		Email             string
		PasswordHash      string
		Name              string
		Location          string
		EnergyPreferences string
		Balance           decimal.Decimal
		Investments       []string // project ids, insertion order, unique
		Version           int64
	}

	// Project is a funding target with a fixed capacity ceiling.
	Project struct {
		ID                string
		Name              string
		Location          string
		Capacity          decimal.Decimal // installed power, informational
		ExpectedReturn    decimal.Decimal // percent
		TotalInvestment   decimal.Decimal
		CurrentInvestment decimal.Decimal
		Investors         []string // account ids, insertion order, unique
		Version           int64
	}

	// Investment is the journal record of one completed transfer.
	Investment struct {
		AccountID         string
		ProjectID         string
		Amount            decimal.Decimal
		Balance           decimal.Decimal
		CurrentInvestment decimal.Decimal
		At                time.Time
	}
)

var (
	ErrEmptyName     = errors.New("empty name")
	ErrEmptyEmail    = errors.New("empty email")
	ErrEmptyLocation = errors.New("empty location")
)

// HasInvestment reports whether the account already funded projectID.
func (a Account) HasInvestment(projectID string) bool {
	return slices.Contains(a.Investments, projectID)
}

// AddInvestment records projectID once, keeping first-insertion order.
func (a *Account) AddInvestment(projectID string) {
	if !a.HasInvestment(projectID) {
		a.Investments = append(a.Investments, projectID)
	}
}

// Clone returns a copy that shares no slices with a.
func (a Account) Clone() Account {
	a.Investments = slices.Clone(a.Investments)
	return a
}

// Validate checks the fields required at registration.
func (a Account) Validate() error {
	if strings.TrimSpace(a.Email) == "" {
		return ErrEmptyEmail
	}
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(a.Location) == "" {
		return ErrEmptyLocation
	}
	if a.Balance.IsNegative() {
		return errors.New("balance cannot be negative")
	}
	return nil
}

// HasInvestor reports whether accountID already funded the project.
func (p Project) HasInvestor(accountID string) bool {
	return slices.Contains(p.Investors, accountID)
}

// AddInvestor records accountID once, keeping first-insertion order.
func (p *Project) AddInvestor(accountID string) {
	if !p.HasInvestor(accountID) {
		p.Investors = append(p.Investors, accountID)
	}
}

// Remaining is the capacity still open for investment.
func (p Project) Remaining() decimal.Decimal {
	return p.TotalInvestment.Sub(p.CurrentInvestment)
}

// Clone returns a copy that shares no slices with p.
func (p Project) Clone() Project {
	p.Investors = slices.Clone(p.Investors)
	return p
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(p.Location) == "" {
		return ErrEmptyLocation
	}
	if !p.TotalInvestment.IsPositive() {
		return errors.New("total investment must be positive")
	}
	if p.Capacity.IsNegative() {
		return errors.New("capacity cannot be negative")
	}
	if p.CurrentInvestment.IsNegative() || p.CurrentInvestment.GreaterThan(p.TotalInvestment) {
		return errors.New("current investment out of range")
	}
	return nil
}
