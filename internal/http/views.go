package http

import (
	"github.com/shopspring/decimal"

	"sourverse/internal/core"
)

// Wire views of the domain records. The password hash never leaves the
// service.
type (
	accountView struct {
		ID                string          `json:"id"`
		Email             string          `json:"email"`
		Name              string          `json:"name"`
		Location          string          `json:"location"`
		EnergyPreferences string          `json:"energyPreferences,omitempty"`
		WalletBalance     decimal.Decimal `json:"walletBalance"`
		Investments       []string        `json:"investments"`
	}

	projectView struct {
		ID                string          `json:"id"`
		Name              string          `json:"name"`
		Location          string          `json:"location"`
		Capacity          decimal.Decimal `json:"capacity"`
		ExpectedReturn    decimal.Decimal `json:"expectedReturn"`
		TotalInvestment   decimal.Decimal `json:"totalInvestment"`
		CurrentInvestment decimal.Decimal `json:"currentInvestment"`
		Investors         []string        `json:"investors"`
	}

	balanceResponse struct {
		Message string          `json:"message,omitempty"`
		Balance decimal.Decimal `json:"balance"`
	}

	registerResponse struct {
		Message string `json:"message"`
		UserID  string `json:"userId"`
	}

	loginResponse struct {
		Token     string `json:"token"`
		UserID    string `json:"userId"`
		ExpiresAt string `json:"expiresAt"`
	}
)

func newAccountView(a core.Account) accountView {
	investments := a.Investments
	if investments == nil {
		investments = []string{}
	}
	return accountView{
		ID:                a.ID,
		Email:             a.Email,
		Name:              a.Name,
		Location:          a.Location,
		EnergyPreferences: a.EnergyPreferences,
		WalletBalance:     a.Balance,
		Investments:       investments,
	}
}

func newProjectView(p core.Project) projectView {
	investors := p.Investors
	if investors == nil {
		investors = []string{}
	}
	return projectView{
		ID:                p.ID,
		Name:              p.Name,
		Location:          p.Location,
		Capacity:          p.Capacity,
		ExpectedReturn:    p.ExpectedReturn,
		TotalInvestment:   p.TotalInvestment,
		CurrentInvestment: p.CurrentInvestment,
		Investors:         investors,
	}
}

func newProjectViews(projects []core.Project) []projectView {
	out := make([]projectView, len(projects))
	for i, p := range projects {
		out[i] = newProjectView(p)
	}
	return out
}
