package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"sourverse/internal/core"
)

// InvestmentJournalMessage carries one committed investment to the journal
// worker. The ledger state is already durable when it is published, so the
// message is a notification, not a command.
type InvestmentJournalMessage struct {
	ID                string          `json:"id"`
	AccountID         string          `json:"accountId"`
	ProjectID         string          `json:"projectId"`
	Amount            decimal.Decimal `json:"amount"`
	Balance           decimal.Decimal `json:"balance"`
	CurrentInvestment decimal.Decimal `json:"currentInvestment"`
	At                time.Time       `json:"at"`
	Timestamp         time.Time       `json:"timestamp"`
}

func NewInvestmentJournalMessage(inv core.Investment) *InvestmentJournalMessage {
	return &InvestmentJournalMessage{
		ID:                uuid.NewString(),
		AccountID:         inv.AccountID,
		ProjectID:         inv.ProjectID,
		Amount:            inv.Amount,
		Balance:           inv.Balance,
		CurrentInvestment: inv.CurrentInvestment,
		At:                inv.At,
		Timestamp:         time.Now(),
	}
}

// Investment converts the message back into the journal record.
func (m *InvestmentJournalMessage) Investment() core.Investment {
	return core.Investment{
		AccountID:         m.AccountID,
		ProjectID:         m.ProjectID,
		Amount:            m.Amount,
		Balance:           m.Balance,
		CurrentInvestment: m.CurrentInvestment,
		At:                m.At,
	}
}

func (m *InvestmentJournalMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func InvestmentJournalMessageFromJSON(data []byte) (*InvestmentJournalMessage, error) {
	var msg InvestmentJournalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
