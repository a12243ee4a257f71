package backend

import (
	"fmt"

	"gastos/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		FirebaseServiceAccount:     appConfig.FirebaseServiceAccount,
		FirebaseServiceAccountFile: appConfig.FirebaseServiceAccountFile,
		FirebaseProjectID:          appConfig.FirebaseProjectID,
		FirestoreCollection:        appConfig.FirestoreCollection,

		SQLiteDBPath: appConfig.SQLiteDBPath,
		DatabaseURL:  appConfig.DatabaseURL,

		DataDirectory: "data",

		LedgerTableURL:        appConfig.LedgerTableURL,
		LedgerTableName:       appConfig.LedgerTableName,
		ChartArchiveURL:       appConfig.ChartArchiveURL,
		ChartArchiveContainer: appConfig.ChartArchiveContainer,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case FirestoreBackend:
		if c.FirebaseServiceAccount == "" && c.FirebaseServiceAccountFile == "" {
			return fmt.Errorf("a service account JSON or file is required for firestore backend")
		}
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for postgres backend")
		}
	case MemoryBackend:
	}

	if c.LedgerTableURL != "" && c.LedgerTableName == "" {
		return fmt.Errorf("ledger table name is required when a ledger table URL is set")
	}
	if c.ChartArchiveURL != "" && c.ChartArchiveContainer == "" {
		return fmt.Errorf("archive container is required when an archive URL is set")
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{FirestoreBackend, SQLiteBackend, PostgresBackend, MemoryBackend}
}
