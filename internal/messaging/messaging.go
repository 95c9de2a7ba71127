package messaging

import (
	"context"
	"time"
)

const (
	DatasetEventsQueue = "dataset_events"
	RetryDelay         = 5 * time.Second
	MaxConnectRetry    = 5
)

const (
	DatasetIngested = "ingested"
	DatasetDeleted  = "deleted"
)

// DatasetEvent is published after a dataset is committed or removed.
type DatasetEvent struct {
	Type      string    `json:"type"`
	DatasetId string    `json:"dataset_id"`
	RowCount  int       `json:"row_count,omitempty"`
	Labels    []string  `json:"labels,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type Publisher interface {
	PublishDatasetEvent(ctx context.Context, event DatasetEvent) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
