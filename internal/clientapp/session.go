package clientapp

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/phillip-england/popsuite/internal/cascade"
	"github.com/phillip-england/popsuite/internal/management"
	"github.com/phillip-england/popsuite/internal/metrics"
	"github.com/phillip-england/popsuite/internal/usermgmt"
)

const updateBuffer = 256

// updateStream is the View of one session's controller. Updates are queued
// for the websocket; when nobody drains the queue new updates are dropped
// and the page resyncs from a snapshot on reconnect.
type updateStream struct {
	ch      chan cascade.Update
	dropped atomic.Int64
}

func newUpdateStream() *updateStream {
	return &updateStream{ch: make(chan cascade.Update, updateBuffer)}
}

func (u *updateStream) drain() {
	for {
		select {
		case <-u.ch:
		default:
			return
		}
	}
}

func (u *updateStream) Update(update cascade.Update) {
	select {
	case u.ch <- update:
	default:
		u.dropped.Add(1)
	}
}

type session struct {
	id         string
	backendKey string
	updates    *updateStream
	ctrl       *cascade.Controller
	mgmt       *management.Synchronizer
	users      *usermgmt.Service
	done       chan struct{}

	initMu    sync.Mutex
	mgmtReady bool

	mu         sync.Mutex
	lastActive time.Time
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

func (s *session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive)
}

// management returns the session's synchronizer, loading it on first use.
func (s *session) management(ctx context.Context) (*management.Synchronizer, error) {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if !s.mgmtReady {
		if _, err := s.mgmt.Init(ctx); err != nil {
			return s.mgmt, err
		}
		s.mgmtReady = true
	}
	return s.mgmt, nil
}

// reload starts a new data entry page: updates queued for the previous
// page are dropped, the form returns to its single empty entry and the
// categories are fetched again.
func (s *session) reload() error {
	s.updates.drain()
	s.ctrl.Reset()
	return s.ctrl.LoadCategories()
}

func (s *session) close() {
	s.ctrl.Close()
	close(s.done)
}

type sessionFactory func(id, backendCookie string) *session

type sessionManager struct {
	mu       sync.Mutex
	sessions map[string]*session
	idle     time.Duration
	build    sessionFactory
	log      logrus.FieldLogger
	now      func() time.Time
}

func newSessionManager(idle time.Duration, build sessionFactory, log logrus.FieldLogger) *sessionManager {
	return &sessionManager{
		sessions: make(map[string]*session),
		idle:     idle,
		build:    build,
		log:      log,
		now:      time.Now,
	}
}

// lookup returns the live session id, or nil when it is unknown, idle, or
// was opened under a different backend login.
func (m *sessionManager) lookup(id, backendCookie string) *session {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	now := m.now()
	if sess.backendKey != backendCookie || sess.idleSince(now) > m.idle {
		m.remove(id)
		return nil
	}
	sess.touch(now)
	return sess
}

func (m *sessionManager) create(backendCookie string) *session {
	sess := m.build(uuid.NewString(), backendCookie)
	sess.touch(m.now())
	m.mu.Lock()
	m.sessions[sess.id] = sess
	m.mu.Unlock()
	metrics.SessionsActive.Inc()
	m.log.WithField("session", sess.id).Debug("session opened")
	return sess
}

func (m *sessionManager) remove(id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		sess.close()
		metrics.SessionsActive.Dec()
		m.log.WithField("session", id).Debug("session closed")
	}
}

// sweep closes every session idle for longer than the limit.
func (m *sessionManager) sweep() int {
	now := m.now()
	m.mu.Lock()
	var stale []string
	for id, sess := range m.sessions {
		if sess.idleSince(now) > m.idle {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()
	for _, id := range stale {
		m.remove(id)
	}
	return len(stale)
}

func (m *sessionManager) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.sweep(); n > 0 {
				m.log.WithField("closed", n).Info("idle sessions swept")
			}
		}
	}
}

func (m *sessionManager) closeAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.remove(id)
	}
}

// session resolves the caller's session, opening one and setting its
// cookie when needed.
func (s *server) session(w http.ResponseWriter, r *http.Request) *session {
	sess, _ := s.openSession(w, r)
	return sess
}

// openSession is session that also reports whether the session was created
// by this request.
func (s *server) openSession(w http.ResponseWriter, r *http.Request) (*session, bool) {
	backendCookie := ""
	if c, err := r.Cookie(s.cfg.BackendCookie); err == nil {
		backendCookie = c.Value
	}
	if c, err := r.Cookie(s.cfg.SessionCookie); err == nil {
		if sess := s.sessions.lookup(c.Value, backendCookie); sess != nil {
			return sess, false
		}
	}
	sess := s.sessions.create(backendCookie)
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.SessionCookie,
		Value:    sess.id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess, true
}

func (s *server) newSession(id, backendCookie string) *session {
	log := s.log.WithField("session", id)
	client := s.backend.WithSession(backendCookie)
	updates := newUpdateStream()
	ctrl := cascade.New(cascade.Config{
		Backend:      client,
		View:         updates,
		Logger:       log,
		FetchTimeout: s.cfg.FetchTimeout,
		SubmitAction: s.cfg.SubmitAction,
	})
	if err := ctrl.LoadCategories(); err != nil {
		log.WithError(err).Warn("load categories failed")
	}
	return &session{
		id:         id,
		backendKey: backendCookie,
		updates:    updates,
		ctrl:       ctrl,
		mgmt:       management.NewSynchronizer(client, log),
		users:      usermgmt.New(client, log),
		done:       make(chan struct{}),
	}
}
