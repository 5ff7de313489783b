// Package middleware содержит HTTP middleware сервиса учёта ежедневных показателей.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/dailyledger/internal/auth"
	"github.com/mmeshcher/dailyledger/internal/identity"
	"github.com/mmeshcher/dailyledger/internal/model"
)

type contextKey string

const (
	userKey    contextKey = "user"
	sessionKey contextKey = "session"
)

const (
	sessionCookieName = "session_token"
	awaitTimeout      = 5 * time.Second
)

// SessionStore проверяет токен доступа и возвращает сессию.
type SessionStore interface {
	GetSession(ctx context.Context, accessToken string) (*model.Session, error)
}

// Tracker сообщает состояние сессии после разрешения профиля.
type Tracker interface {
	Observe(session *model.Session)
	Await(ctx context.Context, sessionID string) (identity.Snapshot, error)
}

// AuthMiddleware восстанавливает сессию и профиль пользователя из cookie.
type AuthMiddleware struct {
	sessions SessionStore
	tracker  Tracker
	logger   *zap.Logger
	secure   bool
}

// NewAuthMiddleware создаёт AuthMiddleware. secure включает флаг Secure у cookie.
func NewAuthMiddleware(sessions SessionStore, tracker Tracker, secure bool, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
		tracker:  tracker,
		logger:   logger,
		secure:   secure,
	}
}

// Middleware кладёт в контекст сессию и, если профиль найден, пользователя.
// Запросы без действующей сессии пропускаются дальше анонимными: решение о
// доступе принимает обработчик.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		session, err := a.sessions.GetSession(r.Context(), cookie.Value)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrSessionExpired) ||
				errors.Is(err, auth.ErrSessionNotFound) {
				a.ClearSessionCookie(w)
			} else {
				a.logger.Error("get session error", zap.Error(err))
			}
			next.ServeHTTP(w, r)
			return
		}

		a.tracker.Observe(session)

		ctx, cancel := context.WithTimeout(r.Context(), awaitTimeout)
		snap, err := a.tracker.Await(ctx, session.ID)
		cancel()
		if err != nil {
			a.logger.Warn("session not resolved in time", zap.Error(err), zap.String("sessionID", session.ID))
		}

		ctx = context.WithValue(r.Context(), sessionKey, session)
		if snap.State == identity.StateAuthenticated && snap.User != nil {
			ctx = context.WithValue(ctx, userKey, snap.User)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetSessionCookie устанавливает cookie сессии. Непостоянная сессия получает
// cookie без срока действия, удаляемый при закрытии браузера.
func (a *AuthMiddleware) SetSessionCookie(w http.ResponseWriter, session *model.Session) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if session.Persistent {
		cookie.Expires = session.ExpiresAt
	}

	http.SetCookie(w, cookie)
}

// ClearSessionCookie удаляет cookie сессии.
func (a *AuthMiddleware) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// UserFromContext извлекает профиль пользователя из контекста запроса.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// SessionFromContext извлекает сессию из контекста запроса.
func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*model.Session)
	return s, ok && s != nil
}

// WithUser возвращает контекст с пользователем и сессией.
func WithUser(ctx context.Context, user *model.User, session *model.Session) context.Context {
	if session != nil {
		ctx = context.WithValue(ctx, sessionKey, session)
	}
	if user != nil {
		ctx = context.WithValue(ctx, userKey, user)
	}
	return ctx
}
