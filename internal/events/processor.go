package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"ipdr-backend/internal/database"
	"ipdr-backend/internal/messaging"
	"ipdr-backend/internal/records"
)

// Auditor is the part of the record store the processor checks events
// against.
type Auditor interface {
	Get(ctx context.Context, id string) (database.Dataset, error)
	OrphanedObjects(ctx context.Context) ([]string, error)
}

// EventProcessor consumes dataset events and checks that the store agrees
// with them: an ingested dataset must be committed, and a deletion must not
// leave raw uploads behind.
type EventProcessor struct {
	auditor  Auditor
	reciever messaging.Reciever
}

func NewEventProcessor(auditor Auditor, reciever messaging.Reciever) *EventProcessor {
	return &EventProcessor{auditor: auditor, reciever: reciever}
}

// Start processes tasks until the reciever is closed.
func (proc *EventProcessor) Start() {
	slog.Info("starting event processor")

	for task := range proc.reciever.Tasks() {
		proc.ProcessTask(task)
	}
}

func (proc *EventProcessor) Stop() {
	slog.Info("stopping event processor")
	proc.reciever.Close()
}

func (proc *EventProcessor) ProcessTask(task messaging.Task) {
	ctx := context.Background()

	if task.Type() != messaging.DatasetEventsQueue {
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	var event messaging.DatasetEvent
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		slog.Error("error unmarshalling dataset event", "error", err)
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err := proc.processEvent(ctx, event); err != nil {
		slog.Error("error processing dataset event", "type", event.Type, "dataset_id", event.DatasetId, "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
		return
	}

	if err := task.Ack(); err != nil {
		slog.Error("error acknowledging message from queue", "error", err)
	}
}

func (proc *EventProcessor) processEvent(ctx context.Context, event messaging.DatasetEvent) error {
	switch event.Type {
	case messaging.DatasetIngested:
		dataset, err := proc.auditor.Get(ctx, event.DatasetId)
		if err != nil {
			if errors.Is(err, records.ErrNotFound) {
				// deleted again before the event was handled
				slog.Warn("ingested dataset is no longer present", "dataset_id", event.DatasetId)
				return nil
			}
			return err
		}
		if dataset.RowCount != event.RowCount {
			slog.Warn("dataset row count differs from ingestion event", "dataset_id", event.DatasetId, "event_rows", event.RowCount, "stored_rows", dataset.RowCount)
		}
		slog.Info("dataset ingested", "dataset_id", event.DatasetId, "rows", event.RowCount, "labels", event.Labels)
		return nil

	case messaging.DatasetDeleted:
		orphans, err := proc.auditor.OrphanedObjects(ctx)
		if err != nil {
			return fmt.Errorf("error checking for orphaned uploads: %w", err)
		}
		if len(orphans) > 0 {
			slog.Warn("raw uploads without a committed dataset", "count", len(orphans), "objects", orphans)
		}
		slog.Info("dataset deleted", "dataset_id", event.DatasetId)
		return nil

	default:
		return fmt.Errorf("unknown dataset event type '%s'", event.Type)
	}
}
