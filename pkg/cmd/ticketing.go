// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/blueprint/pkg/eventbus"
	"github.com/dukex/blueprint/pkg/services"
	"github.com/dukex/blueprint/pkg/ticketing"
)

var ErrTicketingNotConfigured = errors.New("ticketing url is not configured")

// NewTicketingClient returns nil when baseURL is empty.
func NewTicketingClient(baseURL string, timeout time.Duration, logger *slog.Logger) *ticketing.Client {
	if baseURL == "" {
		return nil
	}

	return ticketing.NewClient(baseURL, timeout, logger)
}

// NewGenerationSink picks where ticket generation requests go: "eventbus" publishes
// TicketGenerationRequested events, "http" posts them to the ticketing client.
func NewGenerationSink(kind string, client *ticketing.Client, publisher eventbus.EventPublisher) (services.GenerationSink, error) {
	switch kind {
	case "", "eventbus":
		return ticketing.NewEventSink(publisher), nil
	case "http":
		if client == nil {
			return nil, ErrTicketingNotConfigured
		}

		return client, nil
	default:
		return nil, fmt.Errorf("unsupported generation sink %q", kind)
	}
}
