// Package handler содержит HTTP-обработчики API сервиса учёта ежедневных показателей.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/dailyledger/internal/auth"
	"github.com/mmeshcher/dailyledger/internal/blob"
	"github.com/mmeshcher/dailyledger/internal/identity"
	"github.com/mmeshcher/dailyledger/internal/middleware"
	"github.com/mmeshcher/dailyledger/internal/model"
	"github.com/mmeshcher/dailyledger/internal/repository"
	"github.com/mmeshcher/dailyledger/internal/router"
)

const maxPhotoSize = 10 << 20

// Service определяет контракт контекста идентичности, используемый HTTP-обработчиками.
type Service interface {
	Login(ctx context.Context, email, password string, rememberMe bool) (*model.Session, error)
	Signup(ctx context.Context, email, password, username string, section model.Section) error
	Verify(ctx context.Context, token string) error
	Logout(ctx context.Context, session *model.Session)
	Save(ctx context.Context, user *model.User, sectionKey string, payload model.Payload) error
	Recent(ctx context.Context, user *model.User, prefix string, limit int) []model.Record
	DatesWithData(ctx context.Context, user *model.User, prefix, filter string) []model.Date
}

// Uploader сохраняет фотографии отчётов.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service        Service
	photos         Uploader
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	now            func() time.Time
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// photos может быть nil: загрузка фотографий тогда недоступна.
func NewHandler(s Service, photos Uploader, logger *zap.Logger, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		photos:         photos,
		logger:         logger,
		authMiddleware: authMiddleware,
		now:            time.Now,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type saveResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
	Section  string `json:"section"`
}

// Signup регистрирует пользователя. Сессия не выдаётся до подтверждения почты.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: http.StatusText(http.StatusBadRequest)})
		return
	}

	err := h.service.Signup(r.Context(), req.Email, req.Password, req.Username, model.Section(req.Section))
	if err != nil {
		var authErr *identity.AuthError
		msg := err.Error()
		if errors.As(err, &authErr) {
			msg = authErr.Message
		}

		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
		case errors.Is(err, repository.ErrUserExists):
			h.writeJSON(w, http.StatusConflict, errorResponse{Error: msg})
		default:
			h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msg})
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

// Login выполняет вход и устанавливает cookie сессии.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: http.StatusText(http.StatusBadRequest)})
		return
	}

	if req.Email == "" || req.Password == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: http.StatusText(http.StatusBadRequest)})
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password, req.RememberMe)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrEmailNotConfirmed) {
			h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
			return
		}
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	h.authMiddleware.SetSessionCookie(w, session)
	w.WriteHeader(http.StatusOK)
}

// Verify подтверждает адрес почты и перенаправляет на главную страницу.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.Verify(r.Context(), token); err != nil {
		if errors.Is(err, auth.ErrConfirmationNotFound) {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout завершает сессию. Ответ успешен всегда.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if session, ok := middleware.SessionFromContext(r.Context()); ok {
		h.service.Logout(r.Context(), session)
	}

	h.authMiddleware.ClearSessionCookie(w)
	w.WriteHeader(http.StatusOK)
}

// CurrentUser возвращает профиль текущего пользователя.
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	h.writeJSON(w, http.StatusOK, user)
}

// SaveRecord сохраняет данные формы под ключом раздела из пути.
func (h *Handler) SaveRecord(w http.ResponseWriter, r *http.Request) {
	sectionKey := chi.URLParam(r, "sectionKey")

	user, _ := middleware.UserFromContext(r.Context())
	if user == nil {
		h.writeJSON(w, http.StatusUnauthorized, saveResponse{Error: "not authenticated"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, saveResponse{Error: http.StatusText(http.StatusBadRequest)})
		return
	}

	payload, err := router.DecodePayload(sectionKey, body)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, saveResponse{Error: err.Error()})
		return
	}

	if err := h.service.Save(r.Context(), user, sectionKey, payload); err != nil {
		h.writeJSON(w, http.StatusInternalServerError, saveResponse{Error: err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, saveResponse{Success: true})
}

// ListRecords возвращает записи текущего пользователя, новые первыми.
// Параметр limit ограничивает число записей.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		limit = n
	}

	records := h.service.Recent(r.Context(), user, chi.URLParam(r, "prefix"), limit)
	if len(records) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, records)
}

// DatesWithData возвращает даты, за которые у пользователя есть записи.
func (h *Handler) DatesWithData(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	dates := h.service.DatesWithData(r.Context(), user, chi.URLParam(r, "prefix"), r.URL.Query().Get("filter"))
	if len(dates) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, dates)
}

type photoResponse struct {
	URL string `json:"url"`
}

// UploadPhoto сохраняет фотографию отчёта и возвращает её публичный адрес.
func (h *Handler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if h.photos == nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	kind, err := blob.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoSize)
	file, header, err := r.FormFile("photo")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	defer file.Close()

	key := blob.PhotoKey(kind, header.Filename, h.now())
	url, err := h.photos.Upload(r.Context(), key, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		h.logger.Error("upload photo error", zap.Error(err), zap.String("userID", user.ID), zap.String("key", key))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, photoResponse{URL: url})
}
