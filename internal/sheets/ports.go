package sheets

import (
	"context"

	"sourverse/internal/core"
)

// Ports for outbound adapters.
type (
	// InvestmentJournal records completed investments outside the ledger.
	InvestmentJournal interface {
		AppendInvestment(ctx context.Context, inv core.Investment) (rowRef string, err error)
	}
)
