package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
)

// Config holds the n8n webhook configuration
type Config struct {
	BaseURL   string // base URL of the n8n instance, e.g. https://flows.example.com
	AuthToken string // shared header token, empty disables the header
}

// Client posts clinic lifecycle events to n8n webhook workflows. Every
// event carries a ULID so a workflow run can be traced back to the
// daemon that triggered it.
type Client struct {
	config     Config
	httpClient *http.Client
	entropy    *ulid.MonotonicEntropy
}

// RegistrationEvent notifies the onboarding workflow about a newly
// registered clinic.
type RegistrationEvent struct {
	EventID          string    `json:"event_id"`
	OrganizationID   string    `json:"organization_id"`
	OrganizationName string    `json:"organization_name"`
	Slug             string    `json:"slug"`
	AdminEmail       string    `json:"admin_email"`
	Provisioned      bool      `json:"provisioned"` // true when created by a super admin
	OccurredAt       time.Time `json:"occurred_at"`
}

// NewClient creates a new workflow client
func NewClient(cfg Config) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// NotifyRegistration fires the clinic-registered webhook. Failures are
// reported to the caller but never block registration itself.
func (c *Client) NotifyRegistration(ctx context.Context, event RegistrationEvent) error {
	event.EventID = ulid.MustNew(ulid.Timestamp(time.Now()), c.entropy).String()
	event.OccurredAt = time.Now().UTC()
	return c.post(ctx, "/webhook/clinic-registered", event)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.config.AuthToken != "" {
		req.Header.Set("X-Webhook-Token", c.config.AuthToken)
	}

	log.Printf("[Workflow] Calling %s", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("workflow webhook error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
