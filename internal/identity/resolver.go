package identity

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mmeshcher/dailyledger/internal/model"
	"github.com/mmeshcher/dailyledger/internal/repository"
)

// Profiles описывает точечный поиск профиля по идентификатору учётной записи.
type Profiles interface {
	GetProfile(ctx context.Context, userID string) (*model.User, error)
}

// ProfileResolver сопоставляет аутентифицированную учётную запись с профилем пользователя.
type ProfileResolver struct {
	profiles Profiles
	logger   *zap.Logger
}

// NewProfileResolver создаёт ProfileResolver.
func NewProfileResolver(profiles Profiles, logger *zap.Logger) *ProfileResolver {
	return &ProfileResolver{profiles: profiles, logger: logger}
}

// Resolve возвращает профиль или false, если профиля ещё нет либо поиск не удался.
// Отсутствие профиля не является ошибкой: пользователь остаётся анонимным.
func (r *ProfileResolver) Resolve(ctx context.Context, identityID string) (*model.User, bool) {
	u, err := r.profiles.GetProfile(ctx, identityID)
	if err != nil {
		if !errors.Is(err, repository.ErrProfileNotFound) {
			r.logger.Error("resolve profile error", zap.Error(err), zap.String("userID", identityID))
		}
		return nil, false
	}
	return u, true
}
