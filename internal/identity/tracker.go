package identity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/dailyledger/internal/model"
)

// State состояние сессии с точки зрения контекста идентичности.
type State int

const (
	StateUnresolved State = iota
	StateAuthenticating
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	}
	return "unresolved"
}

// Snapshot неизменяемый снимок состояния сессии.
type Snapshot struct {
	State   State
	User    *model.User
	Session *model.Session
}

// Resolver сопоставляет учётную запись с профилем.
type Resolver interface {
	Resolve(ctx context.Context, identityID string) (*model.User, bool)
}

// SessionSource источник уведомлений об изменении сессий.
type SessionSource interface {
	Subscribe(fn func(model.SessionEvent)) func()
}

type entry struct {
	gen     uint64
	snap    Snapshot
	settled chan struct{}
	closed  bool
}

func (e *entry) settle(snap Snapshot) {
	e.snap = snap
	if !e.closed {
		close(e.settled)
		e.closed = true
	}
}

func (e *entry) reopen(snap Snapshot) {
	e.snap = snap
	if e.closed {
		e.settled = make(chan struct{})
		e.closed = false
	}
}

// Tracker ведёт состояние каждой сессии по уведомлениям хранилища сессий.
//
// Уведомления складываются в очередь без блокировки обработчика и разбираются
// одним потребителем в Run в порядке поступления. Профиль запрашивается в
// отдельной горутине; результат применяется, только если после него не пришло
// новое уведомление по той же сессии.
type Tracker struct {
	resolver    Resolver
	logger      *zap.Logger
	unsubscribe func()
	pruneEvery  time.Duration
	now         func() time.Time

	qmu    sync.Mutex
	queue  []model.SessionEvent
	notify chan struct{}

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewTracker создаёт трекер и подписывает его на источник сессий.
func NewTracker(source SessionSource, resolver Resolver, logger *zap.Logger) *Tracker {
	t := &Tracker{
		resolver:   resolver,
		logger:     logger,
		pruneEvery: time.Minute,
		now:        time.Now,
		notify:     make(chan struct{}, 1),
		sessions:   make(map[string]*entry),
	}
	t.unsubscribe = source.Subscribe(t.enqueue)
	return t
}

// Close отменяет подписку на источник сессий.
func (t *Tracker) Close() {
	if t.unsubscribe != nil {
		t.unsubscribe()
	}
}

func (t *Tracker) enqueue(ev model.SessionEvent) {
	t.qmu.Lock()
	t.queue = append(t.queue, ev)
	t.qmu.Unlock()

	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// Observe сообщает трекеру о сессии, предъявленной клиентом. Для сессии, о
// которой трекер ещё не знает, ставится в очередь событие INITIAL_SESSION.
func (t *Tracker) Observe(session *model.Session) {
	t.mu.Lock()
	_, known := t.sessions[session.ID]
	if !known {
		t.sessions[session.ID] = &entry{
			snap:    Snapshot{State: StateUnresolved, Session: session},
			settled: make(chan struct{}),
		}
	}
	t.mu.Unlock()

	if !known {
		t.enqueue(model.SessionEvent{Kind: model.EventInitialSession, SessionID: session.ID, Session: session})
	}
}

// Snapshot возвращает текущее состояние сессии.
func (t *Tracker) Snapshot(sessionID string) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.sessions[sessionID]; ok {
		return e.snap
	}
	return Snapshot{State: StateUnresolved}
}

// Await ждёт, пока состояние сессии станет Authenticated или Anonymous.
// Для неизвестной сессии сразу возвращает Unresolved.
func (t *Tracker) Await(ctx context.Context, sessionID string) (Snapshot, error) {
	t.mu.Lock()
	e, ok := t.sessions[sessionID]
	t.mu.Unlock()
	if !ok {
		return Snapshot{State: StateUnresolved}, nil
	}

	for {
		t.mu.Lock()
		if e.closed {
			snap := e.snap
			t.mu.Unlock()
			return snap, nil
		}
		ch := e.settled
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case <-ch:
		}
	}
}

// Run разбирает очередь уведомлений до отмены контекста.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.pruneEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.pruneExpired()
		case <-t.notify:
			for _, ev := range t.drain() {
				t.handle(ctx, ev)
			}
		}
	}
}

func (t *Tracker) drain() []model.SessionEvent {
	t.qmu.Lock()
	defer t.qmu.Unlock()

	events := t.queue
	t.queue = nil
	return events
}

func (t *Tracker) handle(ctx context.Context, ev model.SessionEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.sessions[ev.SessionID]
	if !ok {
		e = &entry{settled: make(chan struct{})}
		t.sessions[ev.SessionID] = e
	}
	e.gen++

	if ev.Kind == model.EventSignedOut || ev.Session == nil {
		e.settle(Snapshot{State: StateAnonymous})
		delete(t.sessions, ev.SessionID)
		return
	}

	e.reopen(Snapshot{State: StateAuthenticating, Session: ev.Session})

	gen := e.gen
	session := ev.Session
	go t.resolve(ctx, session, gen)
}

func (t *Tracker) resolve(ctx context.Context, session *model.Session, gen uint64) {
	user, ok := t.resolver.Resolve(ctx, session.UserID)

	t.mu.Lock()
	defer t.mu.Unlock()

	e, exists := t.sessions[session.ID]
	if !exists || e.gen != gen {
		return
	}

	if !ok {
		t.logger.Debug("no profile for session", zap.String("sessionID", session.ID))
		e.settle(Snapshot{State: StateAnonymous, Session: session})
		// Следующее предъявление сессии повторит поиск профиля.
		delete(t.sessions, session.ID)
		return
	}

	e.settle(Snapshot{State: StateAuthenticated, User: user, Session: session})
}

func (t *Tracker) pruneExpired() {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	for id, e := range t.sessions {
		s := e.snap.Session
		if e.closed && s != nil && !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(now) {
			delete(t.sessions, id)
		}
	}
}
