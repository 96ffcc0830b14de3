package memory

import (
	"context"
	"fmt"
	"sync"

	"sourverse/internal/core"
	ports "sourverse/internal/sheets"
)

var _ ports.InvestmentJournal = (*Journal)(nil)

// Journal keeps appended investments in process memory. It backs the worker
// when no spreadsheet is configured.
type Journal struct {
	mu   sync.Mutex
	rows []core.Investment
}

func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) AppendInvestment(_ context.Context, inv core.Investment) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rows = append(j.rows, inv)
	return fmt.Sprintf("memory:%d", len(j.rows)), nil
}

// Investments returns a copy of everything appended so far.
func (j *Journal) Investments() []core.Investment {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]core.Investment, len(j.rows))
	copy(out, j.rows)
	return out
}
