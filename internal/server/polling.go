package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/a-essam23/go-classroom/pkg/transport"
)

const maxFramesPerPoll = 64

var errPollExpired = errors.New("polling session expired")

// pollSession is the server half of a long-polling link. Outbound frames wait
// in a queue until the client polls for them.
type pollSession struct {
	id     uuid.UUID
	sid    string
	outbox chan []byte

	onClose transport.OnCloseHandler

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	lastSeen  atomic.Int64

	logger *slog.Logger
}

var _ transport.Conn = (*pollSession)(nil)

func newPollSession(config transport.ConnectionConfig, onClose transport.OnCloseHandler, logger *slog.Logger) *pollSession {
	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	buffer := config.SendBuffer
	if buffer <= 0 {
		buffer = 256
	}
	s := &pollSession{
		id:      id,
		sid:     uuid.NewString(),
		outbox:  make(chan []byte, buffer),
		onClose: onClose,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  logger.With(slog.String("connID", id.String()), slog.String("mode", string(transport.ModePolling))),
	}
	s.touch()
	return s
}

func (s *pollSession) ID() uuid.UUID         { return s.id }
func (s *pollSession) Mode() transport.Mode  { return transport.ModePolling }
func (s *pollSession) Done() <-chan struct{} { return s.done }

// Run is a no-op: frames are pulled by the client's poll requests.
func (s *pollSession) Run() {}

func (s *pollSession) touch() { s.lastSeen.Store(time.Now().UnixNano()) }

func (s *pollSession) idleSince() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// Send queues a frame without blocking. A client that stops polling loses
// frames once the queue is full.
func (s *pollSession) Send(msg []byte) bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
	}
	select {
	case s.outbox <- msg:
		return true
	default:
		s.logger.Warn("Polling outbox full, dropping frame")
		return false
	}
}

func (s *pollSession) Close(err error) {
	s.closeOnce.Do(func() {
		s.logger.Debug("Polling session closing", slog.Any("reason", err))
		s.cancel()
		if s.onClose != nil {
			s.onClose(s.id, err)
		}
		close(s.done)
	})
}

// drain waits up to wait for at least one frame and returns everything queued.
// It returns no frames and no error when the wait ran out.
func (s *pollSession) drain(ctx context.Context, wait time.Duration) ([]json.RawMessage, error) {
	s.touch()
	defer s.touch()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	var frames []json.RawMessage
	select {
	case msg := <-s.outbox:
		frames = append(frames, msg)
	case <-timer.C:
		return nil, nil
	case <-s.ctx.Done():
		return nil, transport.ErrSessionGone
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for len(frames) < maxFramesPerPoll {
		select {
		case msg := <-s.outbox:
			frames = append(frames, msg)
		default:
			return frames, nil
		}
	}
	return frames, nil
}

type pollRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*pollSession
}

func newPollRegistry() *pollRegistry {
	return &pollRegistry{sessions: make(map[string]*pollSession)}
}

func (p *pollRegistry) add(s *pollSession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[s.sid] = s
}

func (p *pollRegistry) get(sid string) (*pollSession, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[sid]
	return s, ok
}

func (p *pollRegistry) remove(sid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, sid)
}

// expired returns the sessions nobody has polled since before cutoff.
func (p *pollRegistry) expired(cutoff time.Time) []*pollSession {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*pollSession
	for _, s := range p.sessions {
		if s.idleSince().Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}
