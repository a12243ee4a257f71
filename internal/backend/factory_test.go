package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gastos/internal/config"
	"gastos/internal/log"
)

func TestBackendTypeIsValid(t *testing.T) {
	for _, bt := range GetBackendTypes() {
		if !bt.IsValid() {
			t.Errorf("%s should be valid", bt)
		}
	}
	if BackendType("sheets").IsValid() {
		t.Error("sheets should not be valid")
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:     config.BackendSQLite,
		SQLiteDBPath:    "./data/x.db",
		LedgerTableURL:  "http://127.0.0.1:10002/devstoreaccount1",
		LedgerTableName: "deliveries",
	})
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "./data/x.db" || cfg.LedgerTableName != "deliveries" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres without url", Config{Type: PostgresBackend}, true},
		{"firestore without account", Config{Type: FirestoreBackend}, true},
		{"ledger url without table", Config{Type: MemoryBackend, LedgerTableURL: "http://x"}, true},
		{"archive url without container", Config{Type: MemoryBackend, ChartArchiveURL: "http://x"}, true},
		{"unknown", Config{Type: "sheets"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	dir := t.TempDir()
	seed := "2024-01-05T10:00:00Z|Comida|12.50|almuerzo|Ana\n# comment\nbroken line\n"
	if err := os.WriteFile(filepath.Join(dir, "seed_records.txt"), []byte(seed), 0644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	result, err := NewFactory(log.Discard()).CreateBackend(context.Background(), Config{Type: MemoryBackend, DataDirectory: dir})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	defer result.Close()

	if result.Ledger != result.Store {
		t.Error("ledger should default to the record store")
	}
	if result.Archive != nil {
		t.Error("archive should be nil when not configured")
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recs, err := result.Store.FetchRecords(context.Background(), start, start.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("FetchRecords() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 seeded record, got %d", len(recs))
	}
}

func TestCreateSQLiteBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gastos.db")
	result, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: SQLiteBackend, SQLiteDBPath: path})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	defer result.Close()

	if result.Pinger == nil {
		t.Fatal("sqlite backend should expose a pinger")
	}
	if err := result.Pinger.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestCreateBackendRejectsInvalidConfig(t *testing.T) {
	if _, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: PostgresBackend}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestCloseWithoutCleanup(t *testing.T) {
	var r *BackendResult
	if err := r.Close(); err != nil {
		t.Fatalf("nil result Close() = %v", err)
	}
	if err := (&BackendResult{}).Close(); err != nil {
		t.Fatalf("empty result Close() = %v", err)
	}
}
