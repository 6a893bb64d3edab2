// Package ticketing talks to the external ticketing system: it reads tickets and their
// instantiated tasks and forwards dependent-ticket generation requests.
package ticketing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukex/blueprint/pkg/models"
)

var (
	// ErrTicketNotFound is returned when the ticketing system does not know the ticket.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrUnexpectedStatus is returned for any other non-2xx response.
	ErrUnexpectedStatus = errors.New("unexpected response from ticketing system")
)

const DefaultTimeout = 10 * time.Second

// maxErrorBody bounds how much of an error response is kept for diagnostics.
const maxErrorBody = 512

// Client is an HTTP client for the ticketing system API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("module", "ticketing"),
	}
}

// GetTicket fetches GET /tickets/{id}.
func (c *Client) GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	var ticket models.Ticket

	err := c.do(ctx, http.MethodGet, "/tickets/"+url.PathEscape(ticketID), nil, &ticket)
	if err != nil {
		return nil, err
	}

	if ticket.ID == "" {
		ticket.ID = ticketID
	}

	return &ticket, nil
}

// TasksForTicket fetches GET /tickets/{id}/tasks.
func (c *Client) TasksForTicket(ctx context.Context, ticketID string) ([]*models.TicketTask, error) {
	var tasks []*models.TicketTask

	err := c.do(ctx, http.MethodGet, "/tickets/"+url.PathEscape(ticketID)+"/tasks", nil, &tasks)
	if err != nil {
		return nil, err
	}

	for _, task := range tasks {
		if task.TicketID == "" {
			task.TicketID = ticketID
		}
	}

	return tasks, nil
}

// RequestTicketGeneration posts the request to POST /ticket-generation-requests. The
// ticketing system owns numbering and creation; a 2xx only means it accepted the signal.
func (c *Client) RequestTicketGeneration(ctx context.Context, req models.TicketGenerationRequest) error {
	return c.do(ctx, http.MethodPost, "/ticket-generation-requests", req, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "Ticketing request completed",
		"method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrTicketNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return fmt.Errorf("%s %s: %w: status %d: %s",
			method, path, ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}

	return nil
}
