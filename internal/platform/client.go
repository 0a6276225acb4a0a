package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/libops/fleetctl/internal/config"
)

// APIError is a non-2xx response from the platform API.
type APIError struct {
	StatusCode int
	Message    string
}

// Error returns a formatted string representation of the API error.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API returned status %d", e.StatusCode)
}

// Client handles HTTP calls to the site-management API. All calls share one
// rate limiter and one circuit breaker; the breaker trips on transport
// errors and 5xx responses so a platform outage fails the run quickly
// instead of grinding through every remaining site.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]

	pollInterval    time.Duration
	workflowTimeout time.Duration
}

// NewClient creates a new API client from configuration.
func NewClient(cfg *config.Config) *Client {
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "platform-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Client errors (4xx) are the caller's fault and must not trip
		// the breaker.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var ce *clientError
			return errors.As(err, &ce)
		},
	})

	return &Client{
		baseURL: cfg.APIBaseURL,
		token:   cfg.MachineToken,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		limiter:         rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		breaker:         breaker,
		pollInterval:    cfg.PollInterval,
		workflowTimeout: cfg.WorkflowTimeout,
	}
}

// do performs one API call and decodes the JSON response into out (when
// non-nil). The rate limiter runs before the request; the circuit breaker
// wraps the round trip.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	responseBody, err := c.breaker.Execute(func() ([]byte, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{StatusCode: resp.StatusCode}
			var msg struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(data, &msg); err == nil {
				apiErr.Message = msg.Message
			}
			if resp.StatusCode < 500 {
				// Client errors should not trip the breaker.
				return nil, &clientError{apiErr}
			}
			return nil, apiErr
		}

		return data, nil
	})
	if err != nil {
		var ce *clientError
		if errors.As(err, &ce) {
			return ce.apiErr
		}
		return err
	}

	if out != nil {
		if err := json.Unmarshal(responseBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// clientError wraps a 4xx APIError so the circuit breaker ignores it.
type clientError struct {
	apiErr *APIError
}

func (e *clientError) Error() string { return e.apiErr.Error() }

// CurrentUser resolves the authenticated identity behind the machine token.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, &user); err != nil {
		return User{}, fmt.Errorf("failed to resolve current user: %w", err)
	}
	return user, nil
}

// ListSites enumerates every site the token can see.
func (c *Client) ListSites(ctx context.Context) ([]Site, error) {
	var sites []Site
	if err := c.do(ctx, http.MethodGet, "/sites", nil, &sites); err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	return sites, nil
}

// ListEnvironments returns every environment of a site.
func (c *Client) ListEnvironments(ctx context.Context, siteID string) ([]Environment, error) {
	var envs []Environment
	path := fmt.Sprintf("/sites/%s/environments", url.PathEscape(siteID))
	if err := c.do(ctx, http.MethodGet, path, nil, &envs); err != nil {
		return nil, fmt.Errorf("failed to list environments: %w", err)
	}
	return envs, nil
}

// DiffStat returns the uncommitted changes on an environment.
func (c *Client) DiffStat(ctx context.Context, siteID, envID string) (DiffStat, error) {
	var diff DiffStat
	path := fmt.Sprintf("/sites/%s/environments/%s/diffstat", url.PathEscape(siteID), url.PathEscape(envID))
	if err := c.do(ctx, http.MethodGet, path, nil, &diff); err != nil {
		return DiffStat{}, fmt.Errorf("failed to get diffstat: %w", err)
	}
	return diff, nil
}

// CreateEnvironment clones source into a new environment named envID.
func (c *Client) CreateEnvironment(ctx context.Context, siteID, envID, source string) (Workflow, error) {
	payload := map[string]string{
		"id":     envID,
		"source": source,
	}
	var wf Workflow
	path := fmt.Sprintf("/sites/%s/environments", url.PathEscape(siteID))
	if err := c.do(ctx, http.MethodPost, path, payload, &wf); err != nil {
		return Workflow{}, fmt.Errorf("failed to create environment %s: %w", envID, err)
	}
	return wf, nil
}

// DeleteEnvironment deletes an environment, optionally cleaning up its branch.
func (c *Client) DeleteEnvironment(ctx context.Context, siteID, envID string, deleteBranch bool) (Workflow, error) {
	var wf Workflow
	path := fmt.Sprintf("/sites/%s/environments/%s?delete_branch=%t",
		url.PathEscape(siteID), url.PathEscape(envID), deleteBranch)
	if err := c.do(ctx, http.MethodDelete, path, nil, &wf); err != nil {
		return Workflow{}, fmt.Errorf("failed to delete environment %s: %w", envID, err)
	}
	return wf, nil
}

// SetConnectionMode switches an environment between git and sftp.
func (c *Client) SetConnectionMode(ctx context.Context, siteID, envID, mode string) (Workflow, error) {
	payload := map[string]string{"mode": mode}
	var wf Workflow
	path := fmt.Sprintf("/sites/%s/environments/%s/connection-mode", url.PathEscape(siteID), url.PathEscape(envID))
	if err := c.do(ctx, http.MethodPost, path, payload, &wf); err != nil {
		return Workflow{}, fmt.Errorf("failed to set connection mode to %s: %w", mode, err)
	}
	return wf, nil
}

// Commit commits pending filesystem changes on an environment.
func (c *Client) Commit(ctx context.Context, siteID, envID, message string) (Workflow, error) {
	payload := map[string]string{"message": message}
	var wf Workflow
	path := fmt.Sprintf("/sites/%s/environments/%s/commit", url.PathEscape(siteID), url.PathEscape(envID))
	if err := c.do(ctx, http.MethodPost, path, payload, &wf); err != nil {
		return Workflow{}, fmt.Errorf("failed to commit: %w", err)
	}
	return wf, nil
}

// CreateBackup requests a full backup of an environment.
func (c *Client) CreateBackup(ctx context.Context, siteID, envID string) (Workflow, error) {
	payload := map[string]string{"element": "all"}
	var wf Workflow
	path := fmt.Sprintf("/sites/%s/environments/%s/backups", url.PathEscape(siteID), url.PathEscape(envID))
	if err := c.do(ctx, http.MethodPost, path, payload, &wf); err != nil {
		return Workflow{}, fmt.Errorf("failed to create backup: %w", err)
	}
	return wf, nil
}

// SetDrushVersion pins the update tool version on an environment.
func (c *Client) SetDrushVersion(ctx context.Context, siteID, envID string, version int) error {
	payload := map[string]int{"drush_version": version}
	path := fmt.Sprintf("/sites/%s/environments/%s/settings", url.PathEscape(siteID), url.PathEscape(envID))
	if err := c.do(ctx, http.MethodPut, path, payload, nil); err != nil {
		return fmt.Errorf("failed to set drush version: %w", err)
	}
	return nil
}

// GetWorkflow fetches the current state of a workflow.
func (c *Client) GetWorkflow(ctx context.Context, siteID, workflowID string) (Workflow, error) {
	var wf Workflow
	path := fmt.Sprintf("/sites/%s/workflows/%s", url.PathEscape(siteID), url.PathEscape(workflowID))
	if err := c.do(ctx, http.MethodGet, path, nil, &wf); err != nil {
		return Workflow{}, fmt.Errorf("failed to get workflow: %w", err)
	}
	return wf, nil
}
