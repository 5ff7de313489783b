package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/dailyledger/internal/auth"
	"github.com/mmeshcher/dailyledger/internal/identity"
	"github.com/mmeshcher/dailyledger/internal/model"
)

type stubSessions struct {
	session *model.Session
	err     error
}

func (s *stubSessions) GetSession(ctx context.Context, accessToken string) (*model.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.session, nil
}

type stubTracker struct {
	observed []string
	snap     identity.Snapshot
}

func (s *stubTracker) Observe(session *model.Session) {
	s.observed = append(s.observed, session.ID)
}

func (s *stubTracker) Await(ctx context.Context, sessionID string) (identity.Snapshot, error) {
	return s.snap, nil
}

func TestAuthMiddleware_WithValidCookie(t *testing.T) {
	session := &model.Session{ID: "s1", UserID: "u1", AccessToken: "tok", Persistent: true, ExpiresAt: time.Now().Add(time.Hour)}
	user := &model.User{ID: "u1", Username: "ravi", Section: model.SectionOutlet}
	tracker := &stubTracker{snap: identity.Snapshot{State: identity.StateAuthenticated, User: user, Session: session}}
	m := NewAuthMiddleware(&stubSessions{session: session}, tracker, false, zap.NewNop())

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		u, ok := UserFromContext(r.Context())
		if !ok {
			t.Fatalf("user not in context")
		}
		if u.Username != "ravi" {
			t.Fatalf("username from context = %q, want ravi", u.Username)
		}
		if _, ok := SessionFromContext(r.Context()); !ok {
			t.Fatalf("session not in context")
		}
	})

	w := httptest.NewRecorder()
	m.SetSessionCookie(w, session)
	resCookies := w.Result().Cookies()
	if len(resCookies) == 0 {
		t.Fatalf("no cookies set by SetSessionCookie")
	}
	if resCookies[0].Expires.IsZero() {
		t.Fatalf("persistent session cookie has no expiry")
	}

	r := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	r.AddCookie(resCookies[0])

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
	if len(tracker.observed) != 1 || tracker.observed[0] != "s1" {
		t.Fatalf("observed = %v, want [s1]", tracker.observed)
	}
}

func TestAuthMiddleware_WithoutCookie(t *testing.T) {
	tracker := &stubTracker{}
	m := NewAuthMiddleware(&stubSessions{}, tracker, false, zap.NewNop())

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		if _, ok := UserFromContext(r.Context()); ok {
			t.Fatalf("unexpected user in context")
		}
	})

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/user", nil))

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
	if len(tracker.observed) != 0 {
		t.Fatalf("tracker observed sessions without cookie")
	}
}

func TestAuthMiddleware_ExpiredSessionClearsCookie(t *testing.T) {
	m := NewAuthMiddleware(&stubSessions{err: auth.ErrSessionExpired}, &stubTracker{}, false, zap.NewNop())

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := SessionFromContext(r.Context()); ok {
			t.Fatalf("unexpected session in context")
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "stale"})
	w := httptest.NewRecorder()

	m.Middleware(next).ServeHTTP(w, r)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("session cookie was not cleared: %v", cookies)
	}
}

func TestAuthMiddleware_NoProfileKeepsSessionOnly(t *testing.T) {
	session := &model.Session{ID: "s1", UserID: "u1", AccessToken: "tok"}
	tracker := &stubTracker{snap: identity.Snapshot{State: identity.StateAnonymous, Session: session}}
	m := NewAuthMiddleware(&stubSessions{session: session}, tracker, false, zap.NewNop())

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); ok {
			t.Fatalf("user without profile must stay anonymous")
		}
		if _, ok := SessionFromContext(r.Context()); !ok {
			t.Fatalf("session not in context")
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "tok"})

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)
}

func TestSetSessionCookie_NotPersistent(t *testing.T) {
	m := NewAuthMiddleware(&stubSessions{}, &stubTracker{}, true, zap.NewNop())

	w := httptest.NewRecorder()
	m.SetSessionCookie(w, &model.Session{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)})

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	if !cookies[0].Expires.IsZero() || cookies[0].MaxAge != 0 {
		t.Fatalf("non-persistent cookie must not carry an expiry")
	}
	if !cookies[0].Secure {
		t.Fatalf("secure flag not set")
	}
}
