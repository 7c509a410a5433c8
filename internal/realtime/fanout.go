package realtime

import (
	"context"
	"log/slog"

	v1 "relay/contracts/chat/v1"
	"relay/internal/registry"
	"relay/internal/store"
)

// Fanout delivers a message to every live subscriber of its room.
//
// Delivery mode is subscription-filtered: recipients are the sessions whose
// subscription set contains the message's room. Both the websocket path and
// the one-shot HTTP path publish through here, so delivery semantics are
// uniform.
type Fanout struct {
	log     *slog.Logger
	reg     *registry.Registry
	store   store.Store
	metrics *Metrics
}

// NewFanout constructs a fan-out engine.
func NewFanout(log *slog.Logger, reg *registry.Registry, st store.Store, metrics *Metrics) *Fanout {
	if log == nil {
		log = slog.Default()
	}
	return &Fanout{log: log, reg: reg, store: st, metrics: metrics}
}

// Publish persists the message, then pushes it to each live subscriber of
// msg.ChatID. Persistence is attempted first but a failure does not abort
// fan-out: chat availability is prioritized over strict durability, and the
// persist failure is logged distinctly from delivery failures. Per-recipient
// pushes are independent; one recipient's dead or backed-up connection never
// prevents delivery to the rest.
func (f *Fanout) Publish(ctx context.Context, msg v1.Message) {
	if _, err := f.store.CreateMessage(ctx, msg); err != nil {
		f.log.Error("fanout.persist.fail", "msg_id", msg.ID, "room_id", msg.ChatID, "err", err)
		f.metrics.PersistFailures.Inc()
	}

	f.metrics.MessagesPublished.Inc()

	frame := v1.MessageFrame(msg)
	for _, s := range f.reg.AllSessions() {
		if !f.reg.Subscribed(s.UserID, msg.ChatID) {
			continue
		}
		if !s.Conn.Enqueue(frame) {
			f.log.Info("fanout.deliver.drop", "msg_id", msg.ID, "room_id", msg.ChatID, "to", s.UserID)
			f.metrics.DeliveryDrops.Inc()
			continue
		}
		f.metrics.Deliveries.Inc()
	}
}
