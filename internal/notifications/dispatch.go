package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DispatchResult counts the outcome of one user's dispatch.
type DispatchResult struct {
	Attempted     int `json:"attempted"`
	Sent          int `json:"sent"`
	Failed        int `json:"failed"`
	RecordsFailed int `json:"recordsFailed"`
}

// Dispatcher sends a user's messages and records the accepted ones.
// A failing message never prevents its sibling from being attempted.
type Dispatcher struct {
	sender Sender
	ledger Ledger
	logger *slog.Logger
	newID  func() string
}

// NewDispatcher creates a dispatcher that records accepted messages in ledger.
func NewDispatcher(sender Sender, ledger Ledger, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sender: sender,
		ledger: ledger,
		logger: logger,
		newID:  uuid.NewString,
	}
}

// Dispatch sends every message in order. Send and record failures are logged
// and counted, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, u User, msgs []Outgoing, at time.Time) DispatchResult {
	var res DispatchResult
	for _, m := range msgs {
		res.Attempted++
		ticket, err := d.sender.Send(ctx, m.Message)
		if err != nil {
			d.logger.Warn("push send failed",
				"user_id", u.ID, "type", m.Message.Data.Type, "error", err)
			res.Failed++
			continue
		}
		res.Sent++

		rec := Record{
			ID:        d.newID(),
			UserID:    u.ID,
			Title:     m.Message.Title,
			Message:   m.Message.Body,
			Timestamp: at,
			ItemIDs:   m.ItemIDs,
			Type:      m.Message.Data.Type,
		}
		if err := d.ledger.Record(ctx, rec); err != nil {
			d.logger.Error("record notification failed",
				"user_id", u.ID, "ticket", ticket.ID, "error", err)
			res.RecordsFailed++
		}
	}
	return res
}

// discardLedger drops every write. Dry runs dispatch through it.
type discardLedger struct{}

func (discardLedger) Record(context.Context, Record) error           { return nil }
func (discardLedger) Touch(context.Context, string, time.Time) error { return nil }
