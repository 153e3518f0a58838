// Package presence tracks viewer sessions per channel.
//
// A session is a stable identity derived from the client address and
// user-agent, kept alive by playlist and segment requests. The tracker
// exposes only edge events: the first viewer arriving on an empty channel
// and the last viewer leaving (after a grace period a reconnect can
// cancel). The runtime subscribes to those edges to start and stop the
// encoder; raw counts stay internal so contention stays narrow.
package presence

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/castarr/castarr/internal/models"
)

const (
	// DefaultIdleTimeout is how long a session survives without a request.
	DefaultIdleTimeout = 60 * time.Second
	// DefaultGracePeriod is how long after the last viewer leaves before
	// the last-viewer-gone edge fires.
	DefaultGracePeriod = 45 * time.Second

	// userAgentPrefixLen bounds how much of the user-agent participates in
	// the session identity; full strings vary between requests from some
	// players.
	userAgentPrefixLen = 48
)

// sessionNamespace namespaces the derived session UUIDs.
var sessionNamespace = uuid.MustParse("9c2f2a74-1c8e-4a3b-8f41-c0d9b8e5a712")

// DeriveSessionID returns the stable session identity for a client. The
// same address and user-agent prefix always map to the same id, so a
// player re-requesting the playlist keeps its session alive.
func DeriveSessionID(remoteAddr, userAgent string) string {
	// Strip the port; players reconnect from new source ports constantly.
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		remoteAddr = host
	}
	ua := userAgent
	if len(ua) > userAgentPrefixLen {
		ua = ua[:userAgentPrefixLen]
	}
	return uuid.NewSHA1(sessionNamespace, []byte(remoteAddr+"|"+ua)).String()
}

// Events are the edges the runtime subscribes to. Callbacks run on timer
// goroutines; implementations must do their own locking.
type Events struct {
	OnFirstViewer    func(channelID models.ULID)
	OnLastViewerGone func(channelID models.ULID)
}

type channelSessions struct {
	sessions map[string]*time.Timer
	// pendingGone is the armed grace timer, nil when no pause is pending.
	pendingGone *time.Timer
}

// Tracker maintains viewer sessions and fires presence edges.
type Tracker struct {
	idleTimeout time.Duration
	gracePeriod time.Duration
	events      Events
	logger      *slog.Logger

	mu       sync.Mutex
	channels map[models.ULID]*channelSessions
	closed   bool
}

// NewTracker creates a presence tracker. Non-positive timeouts use the
// defaults.
func NewTracker(idleTimeout, gracePeriod time.Duration, events Events, logger *slog.Logger) *Tracker {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		idleTimeout: idleTimeout,
		gracePeriod: gracePeriod,
		events:      events,
		logger:      logger.With("component", "presence"),
		channels:    make(map[models.ULID]*channelSessions),
	}
}

// Touch records activity for a session, creating it if new. Called on every
// playlist and segment request. Returns the channel's viewer count after
// the touch.
func (t *Tracker) Touch(channelID models.ULID, sessionID string) int {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0
	}

	cs := t.channels[channelID]
	if cs == nil {
		cs = &channelSessions{sessions: make(map[string]*time.Timer)}
		t.channels[channelID] = cs
	}

	// A reconnect within grace cancels the pending pause before anything
	// else; the cancellation and the session insert are atomic under the
	// tracker lock.
	if cs.pendingGone != nil {
		cs.pendingGone.Stop()
		cs.pendingGone = nil
		t.logger.Debug("pending pause cancelled by reconnect", "channel_id", channelID)
	}

	wasEmpty := len(cs.sessions) == 0

	if timer, ok := cs.sessions[sessionID]; ok {
		timer.Reset(t.idleTimeout)
	} else {
		cs.sessions[sessionID] = time.AfterFunc(t.idleTimeout, func() {
			t.expire(channelID, sessionID)
		})
	}
	count := len(cs.sessions)
	t.mu.Unlock()

	if wasEmpty && t.events.OnFirstViewer != nil {
		t.events.OnFirstViewer(channelID)
	}
	return count
}

// ViewerCount returns the channel's live session count.
func (t *Tracker) ViewerCount(channelID models.ULID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cs := t.channels[channelID]; cs != nil {
		return len(cs.sessions)
	}
	return 0
}

// expire removes an idle session; the last one out arms the grace timer.
func (t *Tracker) expire(channelID models.ULID, sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	cs := t.channels[channelID]
	if cs == nil {
		return
	}
	if _, ok := cs.sessions[sessionID]; !ok {
		return
	}
	delete(cs.sessions, sessionID)
	t.logger.Debug("viewer session expired", "channel_id", channelID, "session_id", sessionID)

	if len(cs.sessions) == 0 && cs.pendingGone == nil {
		cs.pendingGone = time.AfterFunc(t.gracePeriod, func() {
			t.graceElapsed(channelID)
		})
	}
}

// graceElapsed fires the last-viewer-gone edge if nobody came back.
func (t *Tracker) graceElapsed(channelID models.ULID) {
	t.mu.Lock()
	cs := t.channels[channelID]
	if cs == nil || t.closed {
		t.mu.Unlock()
		return
	}
	cs.pendingGone = nil
	if len(cs.sessions) > 0 {
		t.mu.Unlock()
		return
	}
	delete(t.channels, channelID)
	t.mu.Unlock()

	if t.events.OnLastViewerGone != nil {
		t.events.OnLastViewerGone(channelID)
	}
}

// CancelPending drops any armed grace timer for the channel. Used on
// explicit stop and restart so a stale timer cannot fire afterwards.
func (t *Tracker) CancelPending(channelID models.ULID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cs := t.channels[channelID]; cs != nil && cs.pendingGone != nil {
		cs.pendingGone.Stop()
		cs.pendingGone = nil
	}
}

// Close stops all timers. No edges fire after Close returns.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, cs := range t.channels {
		for _, timer := range cs.sessions {
			timer.Stop()
		}
		if cs.pendingGone != nil {
			cs.pendingGone.Stop()
		}
	}
	t.channels = make(map[models.ULID]*channelSessions)
}
