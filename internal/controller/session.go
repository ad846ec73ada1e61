package controller

import (
	"context"
	"sync"
	"time"

	"github.com/seenimoa/macrocal/internal/client"
	"github.com/seenimoa/macrocal/internal/notify"
)

// ServerInfo is the last known state of the service.
type ServerInfo struct {
	Healthy   bool      `json:"healthy"`
	AIEnabled bool      `json:"aiEnabled"`
	Mode      string    `json:"mode"`
	Status    string    `json:"status"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Session is the explicit, shared context of one client run: when data was
// last refreshed and what the service last reported. Controllers receive it
// instead of reaching for global state.
type Session struct {
	mu         sync.RWMutex
	lastUpdate time.Time
	server     ServerInfo
	now        func() time.Time
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{now: time.Now}
}

// Now returns the session clock.
func (s *Session) Now() time.Time { return s.now() }

// MarkUpdated records a successful data load.
func (s *Session) MarkUpdated() {
	s.mu.Lock()
	s.lastUpdate = s.now()
	s.mu.Unlock()
}

// LastUpdate returns the time of the last successful load, zero if none.
func (s *Session) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// Stale reports whether data was loaded before and is older than after.
func (s *Session) Stale(after time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.lastUpdate.IsZero() && s.now().Sub(s.lastUpdate) > after
}

// Server returns the last known service state.
func (s *Session) Server() ServerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.server
}

func (s *Session) setServer(info ServerInfo) {
	s.mu.Lock()
	s.server = info
	s.mu.Unlock()
}

// CheckServer asks the service for its status with a short timeout and
// records the answer. An unhealthy or unreachable service raises a notice.
func CheckServer(ctx context.Context, api Calendar, sess *Session, n notify.Notifier, timeout time.Duration) (ServerInfo, error) {
	if n == nil {
		n = notify.Discard{}
	}
	st, err := api.Status(ctx, client.WithTimeout(timeout))
	if err != nil {
		sess.setServer(ServerInfo{CheckedAt: sess.now()})
		n.Toast(MsgConnectFailed)
		return ServerInfo{}, err
	}

	info := ServerInfo{
		Healthy:   st.Healthy(),
		AIEnabled: st.AIEnabled,
		Mode:      st.Mode,
		Status:    st.Status,
		CheckedAt: sess.now(),
	}
	sess.setServer(info)
	if !info.Healthy {
		n.Toast(MsgServiceUnhealthy)
	}
	return info, nil
}
