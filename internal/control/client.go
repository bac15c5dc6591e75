package control

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

// Client talks to a running daemon's control server.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a client for addr ("host:port").
func NewClient(addr, token string) *Client {
	return &Client{
		baseURL: "http://" + addr,
		token:   token,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Status fetches GET /api/status.
func (c *Client) Status() (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetBlocked replaces the blocked set.
func (c *Client) SetBlocked(ids []domain.AppID) ([]domain.AppID, error) {
	return c.blocked(http.MethodPut, ids)
}

// AddBlocked adds to the blocked set.
func (c *Client) AddBlocked(ids []domain.AppID) ([]domain.AppID, error) {
	return c.blocked(http.MethodPost, ids)
}

// RemoveBlocked removes from the blocked set.
func (c *Client) RemoveBlocked(ids []domain.AppID) ([]domain.AppID, error) {
	return c.blocked(http.MethodDelete, ids)
}

// Blocked lists the blocked set.
func (c *Client) Blocked() ([]domain.AppID, error) {
	var out BlockedRequest
	if err := c.do(http.MethodGet, "/api/blocked", nil, &out); err != nil {
		return nil, err
	}
	return out.IDs, nil
}

func (c *Client) blocked(method string, ids []domain.AppID) ([]domain.AppID, error) {
	var out BlockedRequest
	if err := c.do(method, "/api/blocked", BlockedRequest{IDs: ids}, &out); err != nil {
		return nil, err
	}
	return out.IDs, nil
}

// SetEnabled switches blocking on or off.
func (c *Client) SetEnabled(enabled bool) error {
	return c.do(http.MethodPut, "/api/enabled", EnabledRequest{Enabled: enabled}, nil)
}

// Apps lists installed applications.
func (c *Client) Apps() ([]domain.InstalledApp, error) {
	var out []domain.InstalledApp
	if err := c.do(http.MethodGet, "/api/apps", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// History returns the most recent sessions, newest first.
func (c *Client) History(limit int) ([]domain.SuppressionSession, error) {
	path := "/api/history"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var out []domain.SuppressionSession
	if err := c.do(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RequestMonitoring asks the daemon to enable the monitoring service.
func (c *Client) RequestMonitoring() (bool, error) {
	var out MonitoringResponse
	if err := c.do(http.MethodPost, "/api/monitoring", nil, &out); err != nil {
		return false, err
	}
	return out.Granted, nil
}

func (c *Client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDaemonNotRunning, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
