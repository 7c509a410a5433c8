package realtime

import (
	"log/slog"

	v1 "relay/contracts/chat/v1"
	"relay/internal/registry"
)

// drainState is the read side of the shutdown coordinator's flag.
type drainState interface {
	Draining() bool
}

// Presence computes and sends user_online/user_offline events when registry
// membership changes.
type Presence struct {
	log     *slog.Logger
	reg     *registry.Registry
	drain   drainState
	metrics *Metrics
}

// NewPresence constructs a presence notifier.
func NewPresence(log *slog.Logger, reg *registry.Registry, drain drainState, metrics *Metrics) *Presence {
	if log == nil {
		log = slog.Default()
	}
	return &Presence{log: log, reg: reg, drain: drain, metrics: metrics}
}

// AnnounceOnline broadcasts user_online about userID to every registered
// connection, including the new one (self-notification keeps client
// bookkeeping simple), then replays one user_online per pre-existing peer
// directly to the new connection so late joiners reconstruct presence state
// without a separate listing call.
func (p *Presence) AnnounceOnline(userID, username string) {
	sessions := p.reg.AllSessions()
	online := v1.UserOnlineFrame(userID, username)

	var newcomer registry.Conn
	for _, s := range sessions {
		if s.UserID == userID {
			newcomer = s.Conn
		}
		if !s.Conn.Enqueue(online) {
			p.log.Info("presence.online.drop", "about", userID, "to", s.UserID)
			continue
		}
		p.metrics.PresenceEvents.WithLabelValues("online").Inc()
	}

	if newcomer == nil {
		// Unregistered concurrently; nothing to replay to.
		return
	}
	for _, s := range sessions {
		if s.UserID == userID {
			continue
		}
		if !newcomer.Enqueue(v1.UserOnlineFrame(s.UserID, s.DisplayName)) {
			p.log.Info("presence.replay.drop", "about", s.UserID, "to", userID)
			continue
		}
		p.metrics.PresenceEvents.WithLabelValues("online").Inc()
	}
}

// AnnounceOffline broadcasts user_offline to all remaining connections.
// Skipped entirely while the process is draining; bulk teardown must not
// produce an N^2 notification storm.
func (p *Presence) AnnounceOffline(userID, username string) {
	if p.drain != nil && p.drain.Draining() {
		return
	}

	offline := v1.UserOfflineFrame(userID, username)
	for _, s := range p.reg.AllSessions() {
		if s.UserID == userID {
			continue
		}
		if !s.Conn.Enqueue(offline) {
			p.log.Info("presence.offline.drop", "about", userID, "to", s.UserID)
			continue
		}
		p.metrics.PresenceEvents.WithLabelValues("offline").Inc()
	}
}
