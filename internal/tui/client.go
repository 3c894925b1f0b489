package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// Client wraps HTTP calls to the coolwatch API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

type sessionPayload struct {
	ID                 string     `json:"id"`
	ItemName           string     `json:"item_name"`
	Category           string     `json:"category"`
	StaffName          string     `json:"staff_name"`
	Status             string     `json:"status"`
	StartedAt          time.Time  `json:"started_at"`
	SoftDueAt          time.Time  `json:"soft_due_at"`
	HardDueAt          time.Time  `json:"hard_due_at"`
	ClosedAt           *time.Time `json:"closed_at"`
	ClosingTemperature *float64   `json:"closing_temperature"`
}

func (p sessionPayload) row() SessionRow {
	return SessionRow{
		ID:         p.ID,
		ItemName:   p.ItemName,
		Category:   p.Category,
		StaffName:  p.StaffName,
		Status:     p.Status,
		StartedAt:  p.StartedAt,
		SoftDueAt:  p.SoftDueAt,
		HardDueAt:  p.HardDueAt,
		ClosedAt:   p.ClosedAt,
		ClosingTmp: p.ClosingTemperature,
	}
}

// ListSessions fetches the board from the API.
func (c *Client) ListSessions(status string) ([]SessionRow, error) {
	url := c.baseURL + "/sessions"
	if status != "" {
		url += "?status=" + status
	}

	resp, err := c.httpClient.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error: %s", string(body))
	}

	var payloads []sessionPayload
	if err := json.NewDecoder(resp.Body).Decode(&payloads); err != nil {
		return nil, err
	}

	rows := make([]SessionRow, len(payloads))
	for i, p := range payloads {
		rows[i] = p.row()
	}
	return rows, nil
}

// GetSessionDetail fetches one session plus its audit trail.
func (c *Client) GetSessionDetail(id string) (*SessionDetail, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/sessions/" + id)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error: %s", string(body))
	}

	var p sessionPayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, err
	}

	detail := &SessionDetail{Session: p.row()}

	// Audit trail is best-effort; the detail pane still renders without it.
	auditResp, err := c.httpClient.Get(c.baseURL + "/sessions/" + id + "/audit")
	if err == nil {
		defer auditResp.Body.Close()
		var entries []struct {
			Action    string    `json:"action"`
			Outcome   string    `json:"outcome"`
			Details   string    `json:"details"`
			Timestamp time.Time `json:"timestamp"`
		}
		if auditResp.StatusCode < 400 && json.NewDecoder(auditResp.Body).Decode(&entries) == nil {
			for _, e := range entries {
				detail.Audit = append(detail.Audit, AuditRow{
					Action:    e.Action,
					Outcome:   e.Outcome,
					Details:   e.Details,
					Timestamp: e.Timestamp,
				})
			}
		}
	}

	return detail, nil
}

// StartSession registers a new cooling batch.
func (c *Client) StartSession(itemName, category, staffName string) (*SessionRow, error) {
	body, _ := json.Marshal(map[string]string{
		"item_name":  itemName,
		"category":   category,
		"staff_name": staffName,
	})

	resp, err := c.httpClient.Post(c.baseURL+"/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error: %s", string(msg))
	}

	var p sessionPayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, err
	}
	row := p.row()
	return &row, nil
}

// CloseSession records a batch as refrigerated, optionally with the
// probe temperature.
func (c *Client) CloseSession(id string, temp *float64) (*SessionRow, error) {
	return c.postAction(id, "close", temp)
}

// DiscardSession records a batch as binned.
func (c *Client) DiscardSession(id string) (*SessionRow, error) {
	return c.postAction(id, "discard", nil)
}

func (c *Client) postAction(id, action string, temp *float64) (*SessionRow, error) {
	payload := map[string]interface{}{}
	if temp != nil {
		payload["temperature"] = *temp
	}
	body, _ := json.Marshal(payload)

	resp, err := c.httpClient.Post(c.baseURL+"/sessions/"+id+"/"+action, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error: %s", string(msg))
	}

	var p sessionPayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, err
	}
	row := p.row()
	return &row, nil
}

// CheckHealth pings the daemon.
func (c *Client) CheckHealth() (*HealthInfo, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var health struct {
		OK      bool   `json:"ok"`
		DB      string `json:"db"`
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, err
	}
	return &HealthInfo{OK: health.OK, DB: health.DB, Version: health.Version}, nil
}
