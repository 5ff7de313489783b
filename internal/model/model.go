// Package model содержит доменные сущности сервиса учёта ежедневных показателей.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Section описывает раздел ввода данных, к которому привязан пользователь.
type Section string

const (
	SectionDaily        Section = "daily"
	SectionOutlet       Section = "outlet"
	SectionDistribution Section = "distribution"
)

// ErrUnknownSection возвращается при разборе неизвестного раздела.
var ErrUnknownSection = errors.New("unknown section")

// ParseSection преобразует строку в раздел.
func ParseSection(s string) (Section, error) {
	switch Section(s) {
	case SectionDaily, SectionOutlet, SectionDistribution:
		return Section(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSection, s)
}

// User представляет профиль аутентифицированного пользователя.
type User struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Section  Section `json:"section"`
}

// Session описывает выданную сессию пользователя.
type Session struct {
	ID          string
	UserID      string
	Email       string
	AccessToken string
	ExpiresAt   time.Time
	// Persistent ложен для входа без "запомнить меня": cookie живёт до закрытия браузера.
	Persistent bool
}

// EventKind описывает тип изменения сессии.
type EventKind string

const (
	EventInitialSession EventKind = "INITIAL_SESSION"
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
)

// SessionEvent уведомление хранилища сессий. Session равен nil, если сессии нет.
type SessionEvent struct {
	Kind      EventKind
	SessionID string
	Session   *Session
}

// Date календарная дата без времени суток и часового пояса.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate возвращает календарную дату из UTC-представления t.
func NewDate(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate разбирает дату в формате YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date: %w", err)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

// MarshalJSON сериализует дату как "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON разбирает дату из "YYYY-MM-DD".
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Account учётная запись хранилища сессий.
type Account struct {
	ID           string
	Email        string
	PasswordHash []byte
	Username     string
	Section      Section
	ConfirmedAt  *time.Time
	CreatedAt    time.Time
}

// Confirmed сообщает, подтверждён ли адрес электронной почты.
func (a *Account) Confirmed() bool {
	return a.ConfirmedAt != nil
}
