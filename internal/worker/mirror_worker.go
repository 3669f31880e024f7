package worker

import (
	"context"
	"fmt"
	"log/slog"

	"fintraka/internal/amqp"
	"fintraka/internal/sheets"
)

// MirrorWorker applies ledger events to a TransactionMirror.
type MirrorWorker struct {
	mirror sheets.TransactionMirror
}

func NewMirrorWorker(mirror sheets.TransactionMirror) *MirrorWorker {
	return &MirrorWorker{mirror: mirror}
}

// HandleEvent is an amqp.Handler. Returned errors requeue the delivery, so
// every branch must be safe to repeat.
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev *amqp.TransactionEvent) error {
	slog.InfoContext(ctx, "Processing transaction event",
		"event", ev.Event,
		"transaction_id", ev.TransactionID,
		"owner_id", ev.OwnerID)

	switch ev.Event {
	case amqp.EventCreated, amqp.EventUpdated:
		if err := w.mirror.UpsertTransaction(ctx, RowFromEvent(ev)); err != nil {
			return fmt.Errorf("upsert transaction %d: %w", ev.TransactionID, err)
		}
	case amqp.EventDeleted:
		if err := w.mirror.DeleteTransaction(ctx, ev.TransactionID); err != nil {
			return fmt.Errorf("delete transaction %d: %w", ev.TransactionID, err)
		}
	default:
		// Unknown kinds cannot succeed on retry; drop them.
		slog.WarnContext(ctx, "Ignoring unknown event", "event", ev.Event, "transaction_id", ev.TransactionID)
	}
	return nil
}

func RowFromEvent(ev *amqp.TransactionEvent) sheets.Row {
	return sheets.Row{
		TransactionID: ev.TransactionID,
		OwnerID:       ev.OwnerID,
		Date:          ev.Date,
		Type:          ev.Type,
		Amount:        ev.Amount,
		CategoryName:  ev.CategoryName,
		Description:   ev.Description,
	}
}
