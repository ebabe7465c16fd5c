package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"dailypost/internal/core/domain"
)

// Client implements ports.Publisher against the platform's REST API.
type Client struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("publisher base url is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Client{baseURL: base, client: httpClient, now: time.Now}, nil
}

type loginResponse struct {
	Token    string            `json:"token"`
	UserID   string            `json:"user_id"`
	Settings map[string]string `json:"settings"`
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (*domain.Session, error) {
	body, _ := json.Marshal(map[string]string{
		"username": creds.Username,
		"password": creds.Password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()
	if err := statusErr(resp, "login"); err != nil {
		return nil, err
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	if lr.Token == "" {
		return nil, fmt.Errorf("%w: login returned no token", domain.ErrAuth)
	}
	now := c.now().UTC()
	return &domain.Session{
		Username:    creds.Username,
		UserID:      lr.UserID,
		Token:       lr.Token,
		Settings:    lr.Settings,
		CreatedAt:   now,
		ValidatedAt: now,
	}, nil
}

// Probe fetches the account's own profile, the cheapest authenticated call.
func (c *Client) Probe(ctx context.Context, session *domain.Session) error {
	if !session.Valid() {
		return fmt.Errorf("%w: session has no token", domain.ErrAuth)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+session.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return statusErr(resp, "probe")
}

// Publish uploads the asset as a multipart form with its caption.
func (c *Client) Publish(ctx context.Context, asset domain.PublishableAsset, caption string, session *domain.Session) (domain.Ack, error) {
	if !session.Valid() {
		return domain.Ack{}, fmt.Errorf("%w: session has no token", domain.ErrAuth)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("caption", caption); err != nil {
		return domain.Ack{}, err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="media"; filename="post.jpg"`)
	h.Set("Content-Type", asset.MIMEType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return domain.Ack{}, err
	}
	if _, err := part.Write(asset.Data); err != nil {
		return domain.Ack{}, err
	}
	if err := mw.Close(); err != nil {
		return domain.Ack{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/media", &buf)
	if err != nil {
		return domain.Ack{}, err
	}
	req.Header.Set("Authorization", "Bearer "+session.Token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Ack{}, fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()
	if err := statusErr(resp, "upload"); err != nil {
		return domain.Ack{}, err
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Ack{}, fmt.Errorf("decode upload response: %w", err)
	}
	return domain.Ack{MediaID: out.ID, PublishedAt: c.now().UTC()}, nil
}

func statusErr(resp *http.Response, op string) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s returned %d", domain.ErrAuth, op, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s retry after %q", domain.ErrRateLimited, op, resp.Header.Get("Retry-After"))
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s failed: status %d, body: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
