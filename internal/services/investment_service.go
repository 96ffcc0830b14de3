package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"sourverse/internal/core"
	"sourverse/internal/ledger"
	applog "sourverse/internal/log"
	"sourverse/internal/metrics"
)

// JournalPublisher receives every committed investment. *amqp.Client
// implements it.
type JournalPublisher interface {
	PublishInvestment(ctx context.Context, inv core.Investment) error
}

// InvestmentService runs ledger investments and fans the outcome out to
// metrics, the journal publisher and the project listing cache.
type InvestmentService struct {
	ledger    *ledger.Ledger
	publisher JournalPublisher
	projects  *ProjectService
	metrics   *metrics.Metrics
	logger    *applog.Logger
}

func NewInvestmentService(l *ledger.Ledger, publisher JournalPublisher, projects *ProjectService, m *metrics.Metrics, logger *applog.Logger) *InvestmentService {
	return &InvestmentService{
		ledger:    l,
		publisher: publisher,
		projects:  projects,
		metrics:   m,
		logger:    applog.OrDefault(logger, applog.ComponentLedger),
	}
}

// Invest moves amount from the account to the project. The journal publish
// happens after the commit and never turns a committed investment into an
// error.
func (s *InvestmentService) Invest(ctx context.Context, accountID, projectID string, amount decimal.Decimal) (ledger.InvestResult, error) {
	start := time.Now()
	res, err := s.ledger.Invest(ctx, accountID, projectID, amount)
	s.metrics.ObserveInvestment(resultLabel(err), amount.InexactFloat64(), time.Since(start))
	if err != nil {
		s.logFailure(ctx, applog.OpInvest, accountID, projectID, amount, err)
		return ledger.InvestResult{}, err
	}

	if s.projects != nil {
		s.projects.Invalidate()
	}
	s.publish(ctx, res.Investment)
	return res, nil
}

func (s *InvestmentService) publish(ctx context.Context, inv core.Investment) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishInvestment(ctx, inv); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish investment journal message",
			applog.NewFields().
				WithTransfer(inv.AccountID, inv.ProjectID, inv.Amount.String()).
				WithError(err).
				ToSlice()...)
	}
}

func (s *InvestmentService) logFailure(ctx context.Context, op, accountID, projectID string, amount decimal.Decimal, err error) {
	args := applog.NewFields().
		WithTransfer(accountID, projectID, amount.String()).
		WithOperation(op).
		WithError(err).
		ToSlice()
	args = append(args, applog.FieldErrorType, core.Kind(err))

	switch core.Kind(err) {
	case "storage_unavailable", "internal":
		s.logger.ErrorContext(ctx, "Ledger operation failed", args...)
	default:
		s.logger.WarnContext(ctx, "Ledger operation rejected", args...)
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return core.Kind(err)
}
