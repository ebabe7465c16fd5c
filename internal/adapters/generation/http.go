package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dailypost/internal/core/domain"
)

// AssetDownloader fetches the bytes behind a finished generation.
type AssetDownloader interface {
	Download(ctx context.Context, assetURL string, header http.Header) ([]byte, string, error)
}

// HTTPGenerator drives a generation service that exposes a job-style REST API:
// POST /generations starts a job, GET /generations/{id} reports its status.
type HTTPGenerator struct {
	baseURL      string
	apiToken     string
	client       *http.Client
	downloader   AssetDownloader
	pollInterval time.Duration
}

type HTTPOptions struct {
	BaseURL      string
	APIToken     string
	PollInterval time.Duration
	Client       *http.Client
	Downloader   AssetDownloader
}

func NewHTTPGenerator(opts HTTPOptions) (*HTTPGenerator, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("generation base url is required")
	}
	if opts.Downloader == nil {
		return nil, errors.New("asset downloader is required")
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: time.Minute}
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 3 * time.Second
	}
	return &HTTPGenerator{
		baseURL:      base,
		apiToken:     opts.APIToken,
		client:       client,
		downloader:   opts.Downloader,
		pollInterval: poll,
	}, nil
}

type generationStatus struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	AssetURL string `json:"asset_url"`
	Error    string `json:"error"`
}

// Acquire starts a generation and polls until it finishes or waitBudget is spent.
func (g *HTTPGenerator) Acquire(ctx context.Context, prompt string, waitBudget time.Duration) (domain.RawAsset, error) {
	if strings.TrimSpace(prompt) == "" {
		return domain.RawAsset{}, errors.New("prompt is empty")
	}
	if waitBudget <= 0 {
		waitBudget = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, waitBudget)
	defer cancel()

	id, err := g.start(ctx, prompt)
	if err != nil {
		return domain.RawAsset{}, g.budgetErr(ctx, fmt.Errorf("failed to start generation: %w", err))
	}

	assetURL, err := g.waitForAsset(ctx, id)
	if err != nil {
		return domain.RawAsset{}, g.budgetErr(ctx, err)
	}

	data, _, err := g.downloader.Download(ctx, assetURL, g.authHeader())
	if err != nil {
		return domain.RawAsset{}, g.budgetErr(ctx, fmt.Errorf("failed to fetch generated asset: %w", err))
	}
	return describe(data, "http:"+id), nil
}

func (g *HTTPGenerator) budgetErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrAcquireTimeout, err)
	}
	return err
}

func (g *HTTPGenerator) authHeader() http.Header {
	h := http.Header{}
	if g.apiToken != "" {
		h.Set("Authorization", "Bearer "+g.apiToken)
	}
	return h
}

func (g *HTTPGenerator) start(ctx context.Context, prompt string) (string, error) {
	body, _ := json.Marshal(map[string]any{"prompt": prompt})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/generations", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header = g.authHeader()
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := statusErr(resp); err != nil {
		return "", err
	}
	var st generationStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return "", fmt.Errorf("%w: start response: %v", domain.ErrAcquireUI, err)
	}
	if st.ID == "" {
		return "", fmt.Errorf("%w: start response has no id", domain.ErrAcquireUI)
	}
	return st.ID, nil
}

func (g *HTTPGenerator) waitForAsset(ctx context.Context, id string) (string, error) {
	statusURL := fmt.Sprintf("%s/generations/%s", g.baseURL, id)

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(g.pollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return "", err
		}
		req.Header = g.authHeader()
		resp, err := g.client.Do(req)
		if err != nil {
			return "", err
		}
		if err := statusErr(resp); err != nil {
			resp.Body.Close()
			return "", err
		}
		var st generationStatus
		err = json.NewDecoder(resp.Body).Decode(&st)
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("%w: status response: %v", domain.ErrAcquireUI, err)
		}

		switch strings.ToLower(st.Status) {
		case "succeeded":
			if st.AssetURL == "" {
				return "", fmt.Errorf("%w: generation %s succeeded without asset_url", domain.ErrAcquireUI, id)
			}
			return st.AssetURL, nil
		case "failed", "aborted":
			return "", fmt.Errorf("%w: generation %s %s: %s", domain.ErrAcquireUI, id, st.Status, st.Error)
		case "timed-out":
			return "", fmt.Errorf("%w: generation %s timed out upstream", domain.ErrAcquireTimeout, id)
		}
		// Still running, continue polling
	}
}

func statusErr(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: generation service returned %d", domain.ErrSessionExpired, resp.StatusCode)
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
