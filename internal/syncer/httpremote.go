package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kbyrne/coolwatch/internal/models"
)

// DefaultRequestTimeout bounds every remote call so a dead uplink never
// wedges a push goroutine.
const DefaultRequestTimeout = 10 * time.Second

// HTTPRemote talks JSON to the HQ backend.
type HTTPRemote struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPRemote creates a remote client for the given base URL.
func NewHTTPRemote(baseURL string) *HTTPRemote {
	return &HTTPRemote{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultRequestTimeout,
		},
	}
}

func (r *HTTPRemote) sessionsURL(siteID string) string {
	return r.baseURL + "/api/sites/" + url.PathEscape(siteID) + "/cooling-sessions"
}

// List fetches the remote session set for a site.
func (r *HTTPRemote) List(ctx context.Context, siteID string) ([]models.CoolingSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.sessionsURL(siteID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("remote error (%d): %s", resp.StatusCode, string(body))
	}

	var sessions []models.CoolingSession
	if err := json.Unmarshal(body, &sessions); err != nil {
		return nil, fmt.Errorf("parse remote sessions: %w", err)
	}
	return sessions, nil
}

// Put upserts one session on the remote store.
func (r *HTTPRemote) Put(ctx context.Context, sess *models.CoolingSession) error {
	jsonData, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.sessionsURL(sess.SiteID), bytes.NewReader(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("remote error (%d): %s", resp.StatusCode, string(body))
	}
	return nil
}
