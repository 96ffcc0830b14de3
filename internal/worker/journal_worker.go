// Package worker exports committed investments from the AMQP journal queue
// to the configured spreadsheet.
package worker

import (
	"context"
	"fmt"
	"time"

	"sourverse/internal/amqp"
	"sourverse/internal/cache"
	applog "sourverse/internal/log"
	"sourverse/internal/sheets"
)

const (
	seenCapacity = 4096
	seenTTL      = 24 * time.Hour
)

// JournalWorker appends one spreadsheet row per journal message. Message ids
// already appended are remembered for a while so a redelivery after a lost
// ack does not produce a duplicate row.
type JournalWorker struct {
	journal sheets.InvestmentJournal
	seen    *cache.LRUCache[string]
	logger  *applog.Logger
}

func NewJournalWorker(journal sheets.InvestmentJournal, logger *applog.Logger) *JournalWorker {
	return &JournalWorker{
		journal: journal,
		seen:    cache.NewLRUCache[string](seenCapacity, seenTTL),
		logger:  applog.OrDefault(logger, applog.ComponentWorker),
	}
}

// Seen exposes the dedup cache so the caller can register it for sweeping.
func (w *JournalWorker) Seen() cache.Cleaner { return w.seen }

// HandleJournalMessage is the amqp consumer callback.
func (w *JournalWorker) HandleJournalMessage(ctx context.Context, msg *amqp.InvestmentJournalMessage) error {
	if ref, ok := w.seen.Get(msg.ID); ok {
		w.logger.InfoContext(ctx, "Skipping already journaled message",
			"message_id", msg.ID,
			applog.FieldSheetsRef, ref)
		return nil
	}

	inv := msg.Investment()
	ref, err := w.journal.AppendInvestment(ctx, inv)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to append investment",
			"message_id", msg.ID,
			applog.FieldAccountID, inv.AccountID,
			applog.FieldProjectID, inv.ProjectID,
			applog.FieldError, err)
		return fmt.Errorf("append investment: %w", err)
	}
	w.seen.Set(msg.ID, ref)

	w.logger.InfoContext(ctx, "Investment journaled",
		"message_id", msg.ID,
		applog.FieldAccountID, inv.AccountID,
		applog.FieldProjectID, inv.ProjectID,
		applog.FieldAmount, inv.Amount.String(),
		applog.FieldSheetsRef, ref)
	return nil
}
