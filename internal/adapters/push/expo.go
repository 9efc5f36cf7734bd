package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chapter-hub/internal/domain"
	"chapter-hub/internal/infra/metrics"
)

// DefaultExpoURL: адрес Expo Push API.
const DefaultExpoURL = "https://exp.host/--/api/v2/push/send"

// Expo отправляет push через Expo Push API.
type Expo struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
}

var _ domain.PushSender = (*Expo)(nil)

type ExpoOption func(*Expo)

func WithHTTPClient(client *http.Client) ExpoOption {
	return func(e *Expo) {
		if client != nil {
			e.httpClient = client
		}
	}
}

func WithAccessToken(token string) ExpoOption {
	return func(e *Expo) {
		e.accessToken = strings.TrimSpace(token)
	}
}

// NewExpo создаёт клиента. Пустой endpoint означает DefaultExpoURL.
func NewExpo(endpoint string, opts ...ExpoOption) *Expo {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultExpoURL
	}
	e := &Expo{endpoint: endpoint, httpClient: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type expoMessage struct {
	To    string `json:"to"`
	Title string `json:"title,omitempty"`
	Body  string `json:"body"`
	Sound string `json:"sound,omitempty"`
}

type expoTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details"`
}

type expoResponse struct {
	Data   []expoTicket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Send реализует domain.PushSender.
func (e *Expo) Send(ctx context.Context, msg domain.PushMessage) error {
	if msg.Token == "" {
		return fmt.Errorf("%w: empty token", domain.ErrPushDeliveryFailed)
	}
	body, err := json.Marshal([]expoMessage{{To: msg.Token, Title: msg.Title, Body: msg.Body, Sound: "default"}})
	if err != nil {
		return fmt.Errorf("marshal push: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.accessToken)
	}

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("expo", "push_send", e.endpoint, start, err)
		return fmt.Errorf("%w: %v", domain.ErrPushDeliveryFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil && resp.StatusCode >= 300 {
		err = fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	metrics.ObserveNetworkRequest("expo", "push_send", e.endpoint, start, err)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPushDeliveryFailed, err)
	}

	var parsed expoResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrPushDeliveryFailed, err)
	}
	if len(parsed.Errors) > 0 {
		return fmt.Errorf("%w: %s: %s", domain.ErrPushDeliveryFailed, parsed.Errors[0].Code, parsed.Errors[0].Message)
	}
	for _, ticket := range parsed.Data {
		if ticket.Status != "ok" {
			return fmt.Errorf("%w: %s %s", domain.ErrPushDeliveryFailed, ticket.Details.Error, ticket.Message)
		}
	}
	return nil
}
