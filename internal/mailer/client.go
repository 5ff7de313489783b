// Package mailer доставляет письма подтверждения почты через HTTP-шлюз рассылки.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrRateLimited возвращается, если шлюз ответил 429.
var ErrRateLimited = errors.New("mail gateway rate limited")

// Client инкапсулирует HTTP-взаимодействие со шлюзом рассылки.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Message описывает письмо, отправляемое шлюзу.
type Message struct {
	To       string `json:"to"`
	Template string `json:"template"`
	Link     string `json:"link"`
}

// RateLimitError содержит рекомендованную шлюзом паузу.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s, retry after %s", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// NewClient создаёт HTTP-клиент шлюза рассылки по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// SendConfirmation отправляет письмо со ссылкой подтверждения почты.
func (c *Client) SendConfirmation(ctx context.Context, email, link string) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("mail gateway not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(Message{To: email, Template: "confirm-signup", Link: link})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return &RateLimitError{RetryAfter: retryAfter}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}

// LogMailer пишет ссылку подтверждения в журнал вместо отправки письма.
// Используется, когда адрес шлюза не задан.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer создаёт LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendConfirmation(ctx context.Context, email, link string) error {
	m.logger.Info("confirmation link", zap.String("email", email), zap.String("link", link))
	return nil
}
