package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensetracker/internal/config"
	"expensetracker/internal/events"
	"expensetracker/internal/sheets/memory"
	"expensetracker/internal/storage"
)

func TestFromAppConfig(t *testing.T) {
	app := &config.Config{
		DataBackend:   "sqlite",
		SQLiteDBPath:  "./data/expenses.db",
		EventsBackend: "kafka",
		KafkaBrokers:  []string{"localhost:9092"},
		KafkaTopic:    "expense-events",
		KafkaGroupID:  "backup",
	}

	cfg, err := FromAppConfig(app)
	require.NoError(t, err)
	assert.Equal(t, SQLiteStorage, cfg.Storage)
	assert.Equal(t, KafkaEvents, cfg.Events)
	assert.Equal(t, "backup", cfg.KafkaGroupID)

	_, err = FromAppConfig(nil)
	assert.Error(t, err)

	app.DataBackend = "sheets"
	_, err = FromAppConfig(app)
	assert.ErrorContains(t, err, "invalid storage type")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory without events", Config{Storage: MemoryStorage, Events: NoEvents}, false},
		{"sqlite without path", Config{Storage: SQLiteStorage, Events: NoEvents}, true},
		{"postgres without dsn", Config{Storage: PostgresStorage, Events: NoEvents}, true},
		{"amqp without url", Config{Storage: MemoryStorage, Events: AMQPEvents}, true},
		{"kafka without topic", Config{Storage: MemoryStorage, Events: KafkaEvents, KafkaBrokers: []string{"k:9092"}}, true},
		{"unknown events", Config{Storage: MemoryStorage, Events: "nats"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}
}

func TestFactory_OpenServerMemory(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	b, err := f.OpenServer(ctx, Config{Storage: MemoryStorage, Events: NoEvents})
	require.NoError(t, err)
	t.Cleanup(func() { b.Cleanup() })

	assert.IsType(t, &storage.MemoryKV{}, b.KV)
	assert.IsType(t, events.Noop{}, b.Publisher)
}

func TestFactory_OpenKVSQLite(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	kv, err := f.OpenKV(ctx, Config{
		Storage:      SQLiteStorage,
		SQLiteDBPath: filepath.Join(t.TempDir(), "expenses.db"),
	})
	require.NoError(t, err)
	defer kv.Close()

	require.NoError(t, kv.Set(ctx, "k", "v"))
	v, found, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", v)
}

func TestFactory_NewConsumerRequiresBroker(t *testing.T) {
	_, err := NewFactory(nil).NewConsumer(context.Background(), Config{Storage: MemoryStorage, Events: NoEvents})
	assert.Error(t, err)
}

func TestFactory_NewBackupFallsBackToMemory(t *testing.T) {
	b, err := NewFactory(nil).NewBackup(context.Background(), Config{})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, b)
}

func TestFactory_NewBackupRequiresCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := NewFactory(nil).NewBackup(context.Background(), Config{
		GoogleSpreadsheetID: "sheet",
		GoogleSheetName:     "Expenses",
	})
	assert.Error(t, err)
}
