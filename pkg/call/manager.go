// Package call tracks one signaling-only call session on top of the realtime
// client. Media is out of scope: offers, answers and ICE candidates are relayed
// as opaque JSON.
package call

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/a-essam23/go-classroom/pkg/realtime"
)

var (
	ErrBusy              = errors.New("call: another call is in progress")
	ErrNoCall            = errors.New("call: no call in progress")
	ErrInvalidTransition = errors.New("call: operation not valid in current state")
	ErrNotDelivered      = errors.New("call: signal not delivered, realtime client not connected")
)

// Signaler is the subset of the realtime client the manager drives.
type Signaler interface {
	On(event string, fn realtime.Handler) realtime.Handle
	Off(event string, handles ...realtime.Handle)
	CallUser(receiverID int64, signal any, isVideo bool) bool
	AnswerCall(callerID int64, signal any) bool
	RejectCall(callerID int64) bool
	EndCall(otherUserID int64) bool
	SendIceCandidate(otherUserID int64, candidate any) bool
}

// Hooks receive session snapshots. They run without the manager lock held and
// may call back into the manager.
type Hooks struct {
	OnIncoming     func(Session)
	OnStateChange  func(Session)
	OnRemoteSignal func(s Session, signal json.RawMessage)
	OnCandidate    func(s Session, candidate json.RawMessage)
}

type Manager struct {
	sig    Signaler
	hooks  Hooks
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	current *Session
	handles []realtime.Handle
}

func NewManager(sig Signaler, hooks Hooks, logger *slog.Logger) *Manager {
	return &Manager{
		sig:    sig,
		hooks:  hooks,
		logger: logger.With(slog.String("component", "call")),
		now:    time.Now,
	}
}

// Bind subscribes the manager to the call events of the signaler. Handlers
// previously registered for those events are replaced.
func (m *Manager) Bind() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.handles) > 0 {
		return
	}
	m.handles = []realtime.Handle{
		m.sig.On(realtime.EventIncomingCall, m.onIncoming),
		m.sig.On(realtime.EventCallAnswered, m.onAnswered),
		m.sig.On(realtime.EventCallRejected, m.onRejected),
		m.sig.On(realtime.EventCallEnded, m.onEnded),
		m.sig.On(realtime.EventIceCandidate, m.onCandidate),
	}
}

// Unbind removes the manager's subscriptions.
func (m *Manager) Unbind() {
	m.mu.Lock()
	handles := m.handles
	m.handles = nil
	m.mu.Unlock()

	for _, h := range handles {
		m.sig.Off(h.Event, h)
	}
}

// Current returns the pending or active session, if any.
func (m *Manager) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Session{State: Idle}, false
	}
	return *m.current, true
}

// Start offers a call to peer.
func (m *Manager) Start(peerID int64, offer any, video bool) error {
	m.mu.Lock()
	if m.current != nil {
		m.mu.Unlock()
		return ErrBusy
	}
	if !m.sig.CallUser(peerID, offer, video) {
		m.mu.Unlock()
		return ErrNotDelivered
	}
	m.current = &Session{
		PeerID:    peerID,
		Video:     video,
		Direction: Outgoing,
		State:     Outgoing,
		StartedAt: m.now(),
	}
	snap := *m.current
	m.mu.Unlock()

	m.logger.Info("Call offered", slog.Int64("peerID", peerID), slog.Bool("video", video))
	m.changed(snap)
	return nil
}

// Accept answers the pending incoming call.
func (m *Manager) Accept(answer any) error {
	m.mu.Lock()
	if err := m.expect(Incoming); err != nil {
		m.mu.Unlock()
		return err
	}
	if !m.sig.AnswerCall(m.current.PeerID, answer) {
		m.mu.Unlock()
		return ErrNotDelivered
	}
	m.current.State = Active
	m.current.AnsweredAt = m.now()
	snap := *m.current
	m.mu.Unlock()

	m.logger.Info("Call accepted", slog.Int64("peerID", snap.PeerID))
	m.changed(snap)
	return nil
}

// Reject declines the pending incoming call.
func (m *Manager) Reject() error {
	m.mu.Lock()
	if err := m.expect(Incoming); err != nil {
		m.mu.Unlock()
		return err
	}
	delivered := m.sig.RejectCall(m.current.PeerID)
	snap := m.terminate(Rejected, "rejected locally")
	m.mu.Unlock()

	m.changed(snap)
	if !delivered {
		return ErrNotDelivered
	}
	return nil
}

// Hangup cancels an outgoing offer or ends an active call.
func (m *Manager) Hangup() error {
	m.mu.Lock()
	if err := m.expect(Outgoing, Active); err != nil {
		m.mu.Unlock()
		return err
	}
	delivered := m.sig.EndCall(m.current.PeerID)
	snap := m.terminate(Ended, "ended locally")
	m.mu.Unlock()

	m.changed(snap)
	if !delivered {
		return ErrNotDelivered
	}
	return nil
}

// SendCandidate relays a local ICE candidate to the peer.
func (m *Manager) SendCandidate(candidate any) error {
	m.mu.Lock()
	if err := m.expect(Outgoing, Incoming, Active); err != nil {
		m.mu.Unlock()
		return err
	}
	peer := m.current.PeerID
	m.mu.Unlock()

	if !m.sig.SendIceCandidate(peer, candidate) {
		return ErrNotDelivered
	}
	return nil
}

// expect must be called with mu held.
func (m *Manager) expect(states ...State) error {
	if m.current == nil {
		return ErrNoCall
	}
	for _, s := range states {
		if m.current.State == s {
			return nil
		}
	}
	return ErrInvalidTransition
}

// terminate must be called with mu held. It clears the session and returns
// its final snapshot.
func (m *Manager) terminate(state State, reason string) Session {
	m.current.State = state
	m.current.Reason = reason
	m.current.EndedAt = m.now()
	snap := *m.current
	m.current = nil
	return snap
}

func (m *Manager) onIncoming(payload json.RawMessage) {
	callerID := gjson.GetBytes(payload, "caller_id").Int()
	if callerID == 0 {
		m.logger.Warn("Incoming call without caller", slog.String("payload", string(payload)))
		return
	}
	video := gjson.GetBytes(payload, "is_video")

	m.mu.Lock()
	if m.current != nil {
		busyWith := m.current.PeerID
		m.mu.Unlock()
		m.logger.Info("Busy, declining incoming call", slog.Int64("callerID", callerID), slog.Int64("busyWith", busyWith))
		m.sig.RejectCall(callerID)
		return
	}
	m.current = &Session{
		PeerID:       callerID,
		PeerName:     gjson.GetBytes(payload, "caller_name").String(),
		PeerAvatar:   gjson.GetBytes(payload, "caller_avatar").String(),
		Video:        !video.Exists() || video.Bool(),
		Direction:    Incoming,
		State:        Incoming,
		RemoteSignal: rawField(payload, "signal"),
		StartedAt:    m.now(),
	}
	snap := *m.current
	m.mu.Unlock()

	m.logger.Info("Incoming call", slog.Int64("callerID", callerID), slog.String("callerName", snap.PeerName))
	if m.hooks.OnIncoming != nil {
		m.hooks.OnIncoming(snap)
	}
	m.changed(snap)
}

func (m *Manager) onAnswered(payload json.RawMessage) {
	m.mu.Lock()
	if m.expect(Outgoing) != nil {
		m.mu.Unlock()
		m.logger.Debug("Ignoring call_answered with no outgoing call")
		return
	}
	m.current.State = Active
	m.current.AnsweredAt = m.now()
	m.current.RemoteSignal = rawField(payload, "signal")
	snap := *m.current
	m.mu.Unlock()

	m.logger.Info("Call answered", slog.Int64("peerID", snap.PeerID))
	if m.hooks.OnRemoteSignal != nil {
		m.hooks.OnRemoteSignal(snap, snap.RemoteSignal)
	}
	m.changed(snap)
}

func (m *Manager) onRejected(payload json.RawMessage) {
	m.mu.Lock()
	if m.expect(Outgoing) != nil {
		m.mu.Unlock()
		m.logger.Debug("Ignoring call_rejected with no outgoing call")
		return
	}
	snap := m.terminate(Rejected, gjson.GetBytes(payload, "reason").String())
	m.mu.Unlock()

	m.logger.Info("Call rejected", slog.Int64("peerID", snap.PeerID), slog.String("reason", snap.Reason))
	m.changed(snap)
}

func (m *Manager) onEnded(json.RawMessage) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return
	}
	snap := m.terminate(Ended, "ended by peer")
	m.mu.Unlock()

	m.logger.Info("Call ended by peer", slog.Int64("peerID", snap.PeerID))
	m.changed(snap)
}

func (m *Manager) onCandidate(payload json.RawMessage) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return
	}
	snap := *m.current
	m.mu.Unlock()

	if m.hooks.OnCandidate != nil {
		m.hooks.OnCandidate(snap, rawField(payload, "candidate"))
	}
}

func (m *Manager) changed(s Session) {
	if m.hooks.OnStateChange != nil {
		m.hooks.OnStateChange(s)
	}
}

func rawField(payload json.RawMessage, path string) json.RawMessage {
	r := gjson.GetBytes(payload, path)
	if !r.Exists() {
		return nil
	}
	return json.RawMessage(r.Raw)
}
