package backend

import (
	"context"

	"gastos/internal/records"
	"gastos/internal/services"
)

// Pinger is implemented by stores that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the wired storage for one process. Ledger is Store
// unless an Azure table overrides it; Archive and Pinger may be nil.
type BackendResult struct {
	Store   records.Store
	Ledger  records.DeliveryLedger
	Archive services.ChartArchive
	Pinger  Pinger
	Cleanup CleanupFunc
}

// Close runs Cleanup when one is set.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Firestore
	FirebaseServiceAccount     string
	FirebaseServiceAccountFile string
	FirebaseProjectID          string
	FirestoreCollection        string

	// SQL stores
	SQLiteDBPath string
	DatabaseURL  string

	// Memory backend seed directory
	DataDirectory string

	// Optional Azure overrides
	LedgerTableURL        string
	LedgerTableName       string
	ChartArchiveURL       string
	ChartArchiveContainer string
}

// BackendType represents the type of backend
type BackendType string

const (
	FirestoreBackend BackendType = "firestore"
	SQLiteBackend    BackendType = "sqlite"
	PostgresBackend  BackendType = "postgres"
	MemoryBackend    BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case FirestoreBackend, SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
