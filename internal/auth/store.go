// Package auth реализует хранилище сессий: вход по паролю, регистрацию с
// подтверждением почты, выход и уведомления об изменении сессий.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/dailyledger/internal/model"
	"github.com/mmeshcher/dailyledger/internal/repository"
)

var (
	// ErrInvalidCredentials возвращается при неверной паре почта/пароль.
	ErrInvalidCredentials = errors.New("invalid login credentials")
	// ErrEmailNotConfirmed возвращается при входе до подтверждения почты.
	ErrEmailNotConfirmed = errors.New("email not confirmed")
	// ErrInvalidInput возвращается при пустых или некорректных полях регистрации.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidToken возвращается для неразборчивого или поддельного токена.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSessionExpired возвращается для истёкшего токена.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionNotFound возвращается, если сессия отозвана.
	ErrSessionNotFound = errors.New("session not found")
	// ErrConfirmationNotFound возвращается для неизвестного или использованного токена подтверждения.
	ErrConfirmationNotFound = errors.New("confirmation token not found")
)

// Accounts описывает хранилище учётных записей.
type Accounts interface {
	CreateAccount(ctx context.Context, a *model.Account) error
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	ConfirmAccount(ctx context.Context, id string) error
	DeleteAccount(ctx context.Context, id string) error
}

// Mailer отправляет письмо со ссылкой подтверждения.
type Mailer interface {
	SendConfirmation(ctx context.Context, email, link string) error
}

// Metadata данные профиля, передаваемые при регистрации.
type Metadata struct {
	Username string
	Section  model.Section
}

// Options параметры хранилища сессий.
type Options struct {
	Secret []byte
	// SessionTTL срок жизни сессии без "запомнить меня".
	SessionTTL time.Duration
	// RememberTTL срок жизни постоянной сессии.
	RememberTTL     time.Duration
	ConfirmationTTL time.Duration
	// AutoConfirm создаёт учётные записи сразу подтверждёнными, без письма.
	AutoConfirm bool
}

// Store хранилище сессий.
type Store struct {
	accounts Accounts
	registry Registry
	mailer   Mailer
	opts     Options
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.RWMutex
	subs    map[int]func(model.SessionEvent)
	nextSub int
}

// NewStore создаёт хранилище сессий.
func NewStore(accounts Accounts, registry Registry, mailer Mailer, opts Options, logger *zap.Logger) *Store {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 12 * time.Hour
	}
	if opts.RememberTTL <= 0 {
		opts.RememberTTL = 30 * 24 * time.Hour
	}
	if opts.ConfirmationTTL <= 0 {
		opts.ConfirmationTTL = 24 * time.Hour
	}

	return &Store{
		accounts: accounts,
		registry: registry,
		mailer:   mailer,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		subs:     make(map[int]func(model.SessionEvent)),
	}
}

// Subscribe регистрирует обработчик изменений сессий и возвращает функцию отписки.
// Обработчики вызываются синхронно в горутине, изменившей сессию.
func (s *Store) Subscribe(fn func(model.SessionEvent)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) publish(ev model.SessionEvent) {
	s.mu.RLock()
	handlers := make([]func(model.SessionEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		handlers = append(handlers, fn)
	}
	s.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// SignUp регистрирует учётную запись. Сессия не выдаётся: пользователь входит
// после подтверждения почты по ссылке, ведущей на redirectURL.
//
// Если письмо не удалось отправить, созданная учётная запись удаляется.
// Повторная регистрация неподтверждённой почты с тем же паролем отправляет
// новую ссылку.
func (s *Store) SignUp(ctx context.Context, email, password string, meta Metadata, redirectURL string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" || strings.TrimSpace(meta.Username) == "" {
		return fmt.Errorf("%w: email, password and username are required", ErrInvalidInput)
	}
	if _, err := model.ParseSection(string(meta.Section)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	account := &model.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Username:     strings.TrimSpace(meta.Username),
		Section:      meta.Section,
	}
	if s.opts.AutoConfirm {
		now := s.now()
		account.ConfirmedAt = &now
	}

	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return s.resendConfirmation(ctx, email, password, redirectURL, err)
		}
		return err
	}

	if s.opts.AutoConfirm {
		return nil
	}

	if err := s.sendConfirmation(ctx, account, redirectURL); err != nil {
		if delErr := s.accounts.DeleteAccount(ctx, account.ID); delErr != nil {
			s.logger.Error("rollback signup error",
				zap.Error(delErr),
				zap.String("userID", account.ID),
			)
		}
		return err
	}

	return nil
}

// resendConfirmation выдаёт новую ссылку для существующей неподтверждённой
// учётной записи. В остальных случаях возвращает existsErr.
func (s *Store) resendConfirmation(ctx context.Context, email, password, redirectURL string, existsErr error) error {
	if s.opts.AutoConfirm {
		return existsErr
	}

	account, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		return existsErr
	}
	if account.Confirmed() || bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)) != nil {
		return existsErr
	}

	s.logger.Info("confirmation resent", zap.String("userID", account.ID))
	return s.sendConfirmation(ctx, account, redirectURL)
}

func (s *Store) sendConfirmation(ctx context.Context, account *model.Account, redirectURL string) error {
	token := uuid.NewString()
	link, err := confirmationLink(redirectURL, token)
	if err != nil {
		return err
	}

	if err := s.registry.SaveConfirmation(ctx, token, account.ID, s.opts.ConfirmationTTL); err != nil {
		return err
	}

	if err := s.mailer.SendConfirmation(ctx, account.Email, link); err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}

	return nil
}

// Verify подтверждает почту по токену из письма.
func (s *Store) Verify(ctx context.Context, token string) error {
	userID, ok, err := s.registry.TakeConfirmation(ctx, token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConfirmationNotFound
	}
	return s.accounts.ConfirmAccount(ctx, userID)
}

// SignInWithPassword проверяет пароль и выдаёт новую сессию.
// При persist=false сессия живёт SessionTTL и не должна переживать закрытие браузера.
func (s *Store) SignInWithPassword(ctx context.Context, email, password string, persist bool) (*model.Session, error) {
	account, err := s.accounts.GetAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	if !account.Confirmed() {
		return nil, ErrEmailNotConfirmed
	}

	ttl := s.opts.SessionTTL
	if persist {
		ttl = s.opts.RememberTTL
	}

	session := &model.Session{
		ID:         uuid.NewString(),
		UserID:     account.ID,
		Email:      account.Email,
		ExpiresAt:  s.now().Add(ttl),
		Persistent: persist,
	}

	session.AccessToken, err = GenerateToken(session.ID, session.UserID, session.Email, s.opts.Secret, session.ExpiresAt)
	if err != nil {
		return nil, err
	}

	if err := s.registry.SaveSession(ctx, session, ttl); err != nil {
		return nil, err
	}

	s.logger.Info("session issued",
		zap.String("userID", session.UserID),
		zap.String("sessionID", session.ID),
		zap.Bool("persistent", persist),
	)

	s.publish(model.SessionEvent{Kind: model.EventSignedIn, SessionID: session.ID, Session: session})

	return session, nil
}

// GetSession возвращает сессию по токену доступа, если она не отозвана и не истекла.
func (s *Store) GetSession(ctx context.Context, accessToken string) (*model.Session, error) {
	claims, err := ParseToken(accessToken, s.opts.Secret)
	if err != nil {
		return nil, err
	}

	ok, err := s.registry.SessionExists(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionNotFound
	}

	session := &model.Session{
		ID:          claims.SessionID,
		UserID:      claims.Subject,
		Email:       claims.Email,
		AccessToken: accessToken,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}

	return session, nil
}

// SignOut отзывает сессию. Неудачное удаление повторяется один раз;
// SIGNED_OUT публикуется только после удаления записи из реестра.
func (s *Store) SignOut(ctx context.Context, sessionID string) error {
	err := s.registry.DeleteSession(ctx, sessionID)
	if err != nil {
		s.logger.Warn("delete session failed, retrying", zap.Error(err), zap.String("sessionID", sessionID))
		err = s.registry.DeleteSession(ctx, sessionID)
	}
	if err != nil {
		s.logger.Error("delete session error", zap.Error(err), zap.String("sessionID", sessionID))
		return fmt.Errorf("sign out: %w", err)
	}

	s.publish(model.SessionEvent{Kind: model.EventSignedOut, SessionID: sessionID})

	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func confirmationLink(redirectURL, token string) (string, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return "", fmt.Errorf("parse redirect url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
