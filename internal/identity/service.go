// Package identity реализует контекст идентичности: вход, регистрацию, выход,
// сохранение и чтение записей от имени явно переданного пользователя.
package identity

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/dailyledger/internal/auth"
	"github.com/mmeshcher/dailyledger/internal/model"
	"github.com/mmeshcher/dailyledger/internal/repository"
	"github.com/mmeshcher/dailyledger/internal/router"
)

// SessionStore описывает используемые операции хранилища сессий.
type SessionStore interface {
	SignInWithPassword(ctx context.Context, email, password string, persist bool) (*model.Session, error)
	SignUp(ctx context.Context, email, password string, meta auth.Metadata, redirectURL string) error
	SignOut(ctx context.Context, sessionID string) error
	Verify(ctx context.Context, token string) error
}

// Repository описывает хранилище записей.
type Repository interface {
	InsertRecord(ctx context.Context, rec model.Record) error
	ListRecords(ctx context.Context, table model.Table, owner string, limit int) ([]model.Record, error)
}

// Service единственная точка входа для операций аутентификации и сохранения данных.
type Service struct {
	sessions    SessionStore
	repo        Repository
	logger      *zap.Logger
	redirectURL string
	now         func() time.Time
}

// NewService создаёт сервис. redirectURL адрес, на который ведёт ссылка подтверждения почты.
func NewService(sessions SessionStore, repo Repository, redirectURL string, logger *zap.Logger) *Service {
	return &Service{
		sessions:    sessions,
		repo:        repo,
		logger:      logger,
		redirectURL: redirectURL,
		now:         time.Now,
	}
}

// Login выполняет вход по паролю. rememberMe=false выдаёт непостоянную сессию.
func (s *Service) Login(ctx context.Context, email, password string, rememberMe bool) (*model.Session, error) {
	session, err := s.sessions.SignInWithPassword(ctx, email, password, rememberMe)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrEmailNotConfirmed) {
			return nil, &AuthError{Message: err.Error(), Err: err}
		}
		s.logger.Error("login error", zap.Error(err))
		return nil, &AuthError{Message: msgLoginFailed, Err: err}
	}
	return session, nil
}

// Signup регистрирует пользователя в разделе. Сессия при этом не создаётся.
func (s *Service) Signup(ctx context.Context, email, password, username string, section model.Section) error {
	meta := auth.Metadata{Username: username, Section: section}

	err := s.sessions.SignUp(ctx, email, password, meta, s.redirectURL)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidInput) || errors.Is(err, repository.ErrUserExists) {
			return &AuthError{Message: err.Error(), Err: err}
		}
		s.logger.Error("signup error", zap.Error(err))
		return &AuthError{Message: msgSignupFailed, Err: err}
	}
	return nil
}

// Verify подтверждает адрес почты по токену из письма.
func (s *Service) Verify(ctx context.Context, token string) error {
	if err := s.sessions.Verify(ctx, token); err != nil {
		if errors.Is(err, auth.ErrConfirmationNotFound) {
			return &AuthError{Message: err.Error(), Err: err}
		}
		s.logger.Error("verify error", zap.Error(err))
		return &AuthError{Message: msgSignupFailed, Err: err}
	}
	return nil
}

// Logout завершает сессию. Ошибки только журналируются.
func (s *Service) Logout(ctx context.Context, session *model.Session) {
	if session == nil {
		return
	}
	if err := s.sessions.SignOut(ctx, session.ID); err != nil {
		s.logger.Error("logout error", zap.Error(err), zap.String("sessionID", session.ID))
	}
}

// Save сохраняет данные формы под ключом раздела от имени user.
//
// Ключ без известного префикса ничего не записывает и возвращает nil.
func (s *Service) Save(ctx context.Context, user *model.User, sectionKey string, payload model.Payload) error {
	if user == nil {
		return &SaveError{Message: msgNotAuthenticated}
	}

	route, ok := router.Resolve(sectionKey)
	if !ok {
		s.logger.Warn("no route for section key, nothing saved", zap.String("sectionKey", sectionKey))
		return nil
	}

	rec, err := route.Shape(user.ID, payload, s.now())
	if err != nil {
		s.logger.Error("shape record error", zap.Error(err), zap.String("sectionKey", sectionKey))
		return &SaveError{Message: msgSaveFailed, Err: err}
	}

	if err := s.repo.InsertRecord(ctx, rec); err != nil {
		s.logger.Error("save record error", zap.Error(err), zap.String("sectionKey", sectionKey), zap.String("userID", user.ID))
		return &SaveError{Message: msgSaveFailed, Err: err}
	}

	return nil
}

// Get возвращает записи пользователя по префиксу раздела, новые первыми.
// Ошибки чтения не возвращаются: результат просто пуст.
func (s *Service) Get(ctx context.Context, user *model.User, prefix string) []model.Record {
	return s.Recent(ctx, user, prefix, 0)
}

// Recent как Get, но не более limit записей (limit <= 0 без ограничения).
func (s *Service) Recent(ctx context.Context, user *model.User, prefix string, limit int) []model.Record {
	if user == nil {
		return []model.Record{}
	}

	table, ok := router.QueryTable(prefix)
	if !ok {
		return []model.Record{}
	}

	records, err := s.repo.ListRecords(ctx, table, user.ID, limit)
	if err != nil {
		s.logger.Error("list records error", zap.Error(err), zap.String("table", string(table)), zap.String("userID", user.ID))
		return []model.Record{}
	}
	if records == nil {
		return []model.Record{}
	}

	return records
}

// DatesWithData возвращает различные даты записей, совпадающих с filter по
// дискриминатору раздела: data_type для daily, outlet_name для outlet,
// distribution_center для distribution. Пустой filter пропускает все записи.
func (s *Service) DatesWithData(ctx context.Context, user *model.User, prefix, filter string) []model.Date {
	records := s.Get(ctx, user, prefix)

	seen := make(map[model.Date]struct{}, len(records))
	dates := make([]model.Date, 0, len(records))
	for _, rec := range records {
		if filter != "" && discriminator(rec) != filter {
			continue
		}
		d := rec.RecordDate()
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		dates = append(dates, d)
	}

	return dates
}

func discriminator(rec model.Record) string {
	switch v := rec.(type) {
	case model.DailyRecord:
		return string(v.DataType)
	case model.OutletRecord:
		return v.OutletName
	case model.DistributionRecord:
		return v.DistributionCenter
	}
	return ""
}
