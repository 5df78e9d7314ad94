// Package backend builds the storage, event and backup adapters selected by
// configuration.
package backend

import (
	"context"
	"errors"
	"fmt"

	"expensetracker/internal/amqp"
	"expensetracker/internal/events"
	"expensetracker/internal/events/kafka"
	"expensetracker/internal/log"
	"expensetracker/internal/sheets"
	gsheet "expensetracker/internal/sheets/google"
	"expensetracker/internal/sheets/memory"
	"expensetracker/internal/storage"
)

// Factory creates backends based on configuration
type Factory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &Factory{logger: logger.WithComponent(log.ComponentBackend)}
}

// OpenKV opens the configured key-value store.
func (f *Factory) OpenKV(ctx context.Context, config Config) (storage.KV, error) {
	switch config.Storage {
	case MemoryStorage:
		f.logger.InfoContext(ctx, "Initialized memory storage")
		return storage.NewMemoryKV(), nil
	case SQLiteStorage:
		kv, err := storage.NewSQLiteKV(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite storage: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite storage", "db_path", config.SQLiteDBPath)
		return kv, nil
	case PostgresStorage:
		kv, err := storage.NewPostgresKV(ctx, config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres storage: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized Postgres storage")
		return kv, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Storage)
	}
}

// NewPublisher connects the event publisher. An unreachable AMQP broker is
// logged and replaced by a no-op publisher so mutations keep working.
func (f *Factory) NewPublisher(ctx context.Context, config Config) (events.Publisher, error) {
	switch config.Events {
	case NoEvents:
		return events.Noop{}, nil
	case AMQPEvents:
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", "error", err)
			return events.Noop{}, nil
		}
		f.logger.InfoContext(ctx, "Initialized AMQP publisher",
			"exchange", config.AMQPExchange,
			"queue", config.AMQPQueue)
		return client, nil
	case KafkaEvents:
		f.logger.InfoContext(ctx, "Initialized Kafka publisher",
			"brokers", config.KafkaBrokers,
			"topic", config.KafkaTopic)
		return kafka.NewPublisher(config.KafkaBrokers, config.KafkaTopic), nil
	default:
		return nil, fmt.Errorf("unsupported events type: %s", config.Events)
	}
}

// NewConsumer connects the event consumer used by the backup worker.
func (f *Factory) NewConsumer(ctx context.Context, config Config) (events.Consumer, error) {
	switch config.Events {
	case AMQPEvents:
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AMQP consumer: %w", err)
		}
		return client, nil
	case KafkaEvents:
		return kafka.NewConsumer(config.KafkaBrokers, config.KafkaTopic, config.KafkaGroupID), nil
	case NoEvents:
		return nil, errors.New("an events backend is required to consume events")
	default:
		return nil, fmt.Errorf("unsupported events type: %s", config.Events)
	}
}

// NewBackup returns the Google Sheets backup when a spreadsheet is set, or an
// in-process store otherwise.
func (f *Factory) NewBackup(ctx context.Context, config Config) (sheets.Backup, error) {
	if config.GoogleSpreadsheetID == "" {
		f.logger.WarnContext(ctx, "No spreadsheet configured, backups are kept in memory only")
		return memory.New(), nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		SheetName:       config.GoogleSheetName,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.InfoContext(ctx, "Initialized Google Sheets backup", "sheet", config.GoogleSheetName)
	return client, nil
}

// OpenServer builds the KV and publisher used by the HTTP server and CLI.
func (f *Factory) OpenServer(ctx context.Context, config Config) (*Backends, error) {
	kv, err := f.OpenKV(ctx, config)
	if err != nil {
		return nil, err
	}
	pub, err := f.NewPublisher(ctx, config)
	if err != nil {
		kv.Close()
		return nil, err
	}
	return &Backends{
		KV:        kv,
		Publisher: pub,
		Cleanup: func() error {
			return errors.Join(pub.Close(), kv.Close())
		},
	}, nil
}

// OpenWorker builds the KV, consumer and backup used by the backup worker.
func (f *Factory) OpenWorker(ctx context.Context, config Config) (*Backends, error) {
	kv, err := f.OpenKV(ctx, config)
	if err != nil {
		return nil, err
	}
	consumer, err := f.NewConsumer(ctx, config)
	if err != nil {
		kv.Close()
		return nil, err
	}
	backup, err := f.NewBackup(ctx, config)
	if err != nil {
		consumer.Close()
		kv.Close()
		return nil, err
	}
	return &Backends{
		KV:       kv,
		Consumer: consumer,
		Backup:   backup,
		Cleanup: func() error {
			return errors.Join(consumer.Close(), kv.Close())
		},
	}, nil
}
