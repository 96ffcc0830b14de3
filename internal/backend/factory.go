package backend

import (
	"context"
	"errors"
	"fmt"

	"sourverse/internal/amqp"
	applog "sourverse/internal/log"
	"sourverse/internal/storage"
	"sourverse/internal/store"
	"sourverse/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
	// dial is swapped in tests
	dial func(url, exchange, queue string, logger *applog.Logger) (*amqp.Client, error)
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) *DefaultFactory {
	return &DefaultFactory{
		logger: applog.OrDefault(logger, applog.ComponentBackend),
		dial:   amqp.NewClient,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		result *BackendResult
		err    error
	)
	switch config.Type {
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(config)
	case MemoryBackend:
		result = f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	f.attachPublisher(ctx, result, config)
	return result, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return &BackendResult{
		Repository: repo,
		Ready:      repo.Ping,
		Cleanup:    repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() *BackendResult {
	repo := memory.New()
	f.logger.Info("Initialized memory backend")
	return &BackendResult{
		Repository: repo,
		Ready:      func(context.Context) error { return nil },
		Cleanup:    repo.Close,
	}
}

// attachPublisher connects the journal publisher when AMQP is configured.
// A broker that is down at startup only disables publishing.
func (f *DefaultFactory) attachPublisher(ctx context.Context, result *BackendResult, config Config) {
	if config.AMQPURL == "" {
		return
	}
	client, err := f.dial(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without journal publishing",
			applog.FieldError, err)
		return
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)

	result.Publisher = client
	repoCleanup := result.Cleanup
	result.Cleanup = func() error {
		return errors.Join(client.Close(), repoCleanup())
	}
}

var (
	_ Factory          = (*DefaultFactory)(nil)
	_ store.Repository = (*storage.SQLiteRepository)(nil)
	_ store.Repository = (*memory.Store)(nil)
)
