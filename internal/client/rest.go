package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chat-realtime/internal/models"
)

// RoomLister fetches the authoritative room list with unread counters.
type RoomLister interface {
	ListRooms(ctx context.Context) ([]models.RoomSummary, error)
}

// REST talks to the HTTP side of the server.
type REST struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewREST(baseURL, token string) *REST {
	return &REST{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Login exchanges credentials for a token and remembers it.
func (c *REST) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	body, err := json.Marshal(models.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	var out models.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/login", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	c.token = out.Token
	return &out, nil
}

func (c *REST) ListRooms(ctx context.Context) ([]models.RoomSummary, error) {
	var rooms []models.RoomSummary
	if err := c.do(ctx, http.MethodGet, "/rooms", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (c *REST) History(ctx context.Context, roomID, limit int) ([]models.Message, error) {
	var messages []models.Message
	path := fmt.Sprintf("/rooms/%d/messages?limit=%d", roomID, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *REST) Token() string {
	return c.token
}

func (c *REST) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%s %s: %s %s %s", method, path, resp.Status, apiErr.Code, apiErr.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
