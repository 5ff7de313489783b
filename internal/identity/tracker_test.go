package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/dailyledger/internal/model"
)

type fakeSource struct {
	mu sync.Mutex
	fn func(model.SessionEvent)
}

func (s *fakeSource) Subscribe(fn func(model.SessionEvent)) func() {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.fn = nil
		s.mu.Unlock()
	}
}

func (s *fakeSource) emit(ev model.SessionEvent) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

type fakeResolver struct {
	mu    sync.Mutex
	users map[string]*model.User
	gates map[string]chan struct{}
	calls int
}

func (r *fakeResolver) Resolve(ctx context.Context, identityID string) (*model.User, bool) {
	r.mu.Lock()
	r.calls++
	gate := r.gates[identityID]
	r.mu.Unlock()

	if gate != nil {
		<-gate
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[identityID]
	return u, ok
}

func (r *fakeResolver) setUser(id string, u *model.User) {
	r.mu.Lock()
	r.users[id] = u
	r.mu.Unlock()
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func startTracker(t *testing.T, resolver *fakeResolver) (*Tracker, *fakeSource) {
	t.Helper()

	source := &fakeSource{}
	tr := NewTracker(source, resolver, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		tr.Close()
	})

	return tr, source
}

func awaitSnapshot(t *testing.T, tr *Tracker, sessionID string) Snapshot {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snap, err := tr.Await(ctx, sessionID)
	require.NoError(t, err)
	return snap
}

func TestTracker_InitialSessionResolvesProfile(t *testing.T) {
	resolver := &fakeResolver{users: map[string]*model.User{
		"u1": {ID: "u1", Username: "ravi", Section: model.SectionOutlet},
	}}
	tr, _ := startTracker(t, resolver)

	session := &model.Session{ID: "s1", UserID: "u1"}
	tr.Observe(session)

	snap := awaitSnapshot(t, tr, "s1")
	assert.Equal(t, StateAuthenticated, snap.State)
	require.NotNil(t, snap.User)
	assert.Equal(t, "ravi", snap.User.Username)
	assert.Equal(t, session, snap.Session)

	tr.Observe(session)
	awaitSnapshot(t, tr, "s1")
	assert.Equal(t, 1, resolver.callCount())
}

func TestTracker_NoProfileIsAnonymousAndRetried(t *testing.T) {
	resolver := &fakeResolver{users: map[string]*model.User{}}
	tr, _ := startTracker(t, resolver)

	session := &model.Session{ID: "s1", UserID: "u1"}
	tr.Observe(session)

	snap := awaitSnapshot(t, tr, "s1")
	assert.Equal(t, StateAnonymous, snap.State)
	assert.Nil(t, snap.User)

	resolver.setUser("u1", &model.User{ID: "u1", Username: "ravi"})

	tr.Observe(session)
	assert.Equal(t, StateAuthenticated, awaitSnapshot(t, tr, "s1").State)
	assert.Equal(t, 2, resolver.callCount())
}

func TestTracker_SignedOutClearsUser(t *testing.T) {
	resolver := &fakeResolver{users: map[string]*model.User{"u1": {ID: "u1"}}}
	tr, source := startTracker(t, resolver)

	session := &model.Session{ID: "s1", UserID: "u1"}
	tr.Observe(session)
	require.Equal(t, StateAuthenticated, awaitSnapshot(t, tr, "s1").State)

	source.emit(model.SessionEvent{Kind: model.EventSignedOut, SessionID: "s1"})

	require.Eventually(t, func() bool {
		return tr.Snapshot("s1").User == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTracker_LaterEventWins(t *testing.T) {
	gate := make(chan struct{})
	resolver := &fakeResolver{
		users: map[string]*model.User{
			"slow": {ID: "slow", Username: "stale"},
			"fast": {ID: "fast", Username: "fresh"},
		},
		gates: map[string]chan struct{}{"slow": gate},
	}
	tr, source := startTracker(t, resolver)

	source.emit(model.SessionEvent{Kind: model.EventSignedIn, SessionID: "s1", Session: &model.Session{ID: "s1", UserID: "slow"}})
	source.emit(model.SessionEvent{Kind: model.EventTokenRefreshed, SessionID: "s1", Session: &model.Session{ID: "s1", UserID: "fast"}})

	isFresh := func() bool {
		snap := tr.Snapshot("s1")
		return snap.State == StateAuthenticated && snap.User != nil && snap.User.Username == "fresh"
	}
	require.Eventually(t, isFresh, 2*time.Second, 10*time.Millisecond)

	close(gate)

	assert.Never(t, func() bool { return !isFresh() }, 200*time.Millisecond, 10*time.Millisecond)
}

func TestTracker_AwaitUnknownSession(t *testing.T) {
	tr, _ := startTracker(t, &fakeResolver{users: map[string]*model.User{}})

	snap := awaitSnapshot(t, tr, "missing")
	assert.Equal(t, StateUnresolved, snap.State)
}

func TestTracker_AwaitRespectsContext(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)

	resolver := &fakeResolver{
		users: map[string]*model.User{"u1": {ID: "u1"}},
		gates: map[string]chan struct{}{"u1": gate},
	}
	tr, _ := startTracker(t, resolver)

	tr.Observe(&model.Session{ID: "s1", UserID: "u1"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := tr.Await(ctx, "s1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTracker_PruneExpired(t *testing.T) {
	resolver := &fakeResolver{users: map[string]*model.User{"u1": {ID: "u1"}}}
	tr, _ := startTracker(t, resolver)

	expires := time.Now().Add(time.Hour)
	tr.Observe(&model.Session{ID: "s1", UserID: "u1", ExpiresAt: expires})
	require.Equal(t, StateAuthenticated, awaitSnapshot(t, tr, "s1").State)

	tr.mu.Lock()
	tr.now = func() time.Time { return expires.Add(time.Minute) }
	tr.mu.Unlock()
	tr.pruneExpired()

	assert.Equal(t, StateUnresolved, tr.Snapshot("s1").State)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unresolved", StateUnresolved.String())
	assert.Equal(t, "authenticating", StateAuthenticating.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "anonymous", StateAnonymous.String())
}
