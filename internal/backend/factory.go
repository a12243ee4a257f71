package backend

import (
	"context"
	"errors"
	"fmt"

	"gastos/internal/azure"
	"gastos/internal/log"
	"gastos/internal/postgres"
	"gastos/internal/records"
	"gastos/internal/records/firestore"
	"gastos/internal/records/memory"
	"gastos/internal/storage"
)

var (
	_ records.Store = (*postgres.Store)(nil)
	_ Pinger        = (*postgres.Store)(nil)
	_ Pinger        = (*storage.SQLiteRepository)(nil)
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend opens the record store and the optional Azure ledger and
// archive. Anything opened before a failure is closed again.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		result *BackendResult
		err    error
	)
	switch config.Type {
	case FirestoreBackend:
		result, err = f.createFirestoreBackend(ctx, config)
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(config)
	case PostgresBackend:
		result, err = f.createPostgresBackend(ctx, config)
	case MemoryBackend:
		result, err = f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}
	result.Ledger = result.Store

	if config.LedgerTableURL != "" {
		ledger, err := azure.NewTableLedger(ctx, config.LedgerTableURL, config.LedgerTableName, f.logger)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to initialize ledger table: %w", err), result.Close())
		}
		result.Ledger = ledger
		f.logger.Info("Delivery ledger moved to Azure table", "table", config.LedgerTableName)
	}

	if config.ChartArchiveURL != "" {
		archive, err := azure.NewBlobArchive(ctx, config.ChartArchiveURL, config.ChartArchiveContainer, f.logger)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to initialize chart archive: %w", err), result.Close())
		}
		result.Archive = archive
		f.logger.Info("Chart archive enabled", "container", config.ChartArchiveContainer)
	}

	return result, nil
}

func (f *DefaultFactory) createFirestoreBackend(ctx context.Context, config Config) (*BackendResult, error) {
	client, err := firestore.New(ctx, firestore.Options{
		ServiceAccountJSON: config.FirebaseServiceAccount,
		ServiceAccountFile: config.FirebaseServiceAccountFile,
		ProjectID:          config.FirebaseProjectID,
		Collection:         config.FirestoreCollection,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firestore client: %w", err)
	}

	f.logger.Info("Initialized Firestore backend", "collection", config.FirestoreCollection)
	return &BackendResult{Store: client}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return &BackendResult{
		Store:   repo,
		Pinger:  repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := postgres.Open(ctx, config.DatabaseURL, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
	}

	f.logger.Info("Initialized Postgres backend")
	return &BackendResult{
		Store:   store,
		Pinger:  store,
		Cleanup: store.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	store := memory.NewFromFiles(dataDir)

	f.logger.Info("Initialized memory backend", "data_directory", dataDir)
	return &BackendResult{Store: store}, nil
}
