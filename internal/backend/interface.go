package backend

import (
	"context"

	"fintraka/internal/services"
	"fintraka/internal/storage"
)

type CleanupFunc func() error

// BackendResult is the opened store plus the optional ledger event
// publisher. Publisher is nil when AMQP is not configured or unreachable.
type BackendResult struct {
	Store     storage.Store
	Publisher services.EventPublisher
	Cleanup   CleanupFunc
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

type Config struct {
	Type BackendType

	SQLiteDBPath string
	PostgresDSN  string

	// AMQP is optional for every backend.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}
