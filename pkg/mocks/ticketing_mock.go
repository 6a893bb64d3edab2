package mocks

import (
	"context"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockTicketSource is a mock implementation of services.TicketSource interface.
type MockTicketSource struct {
	mock.Mock
}

func (m *MockTicketSource) GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Ticket), args.Error(1)
}

// TasksForTicket accepts either a task slice or a func(ctx, ticketID) returning one as
// the first return value, so tests can change task state between calls.
func (m *MockTicketSource) TasksForTicket(ctx context.Context, ticketID string) ([]*models.TicketTask, error) {
	args := m.Called(ctx, ticketID)

	switch tasks := args.Get(0).(type) {
	case nil:
		return nil, args.Error(1)
	case func(context.Context, string) []*models.TicketTask:
		return tasks(ctx, ticketID), args.Error(1)
	default:
		return args.Get(0).([]*models.TicketTask), args.Error(1)
	}
}

// MockGenerationSink is a mock implementation of services.GenerationSink interface.
type MockGenerationSink struct {
	mock.Mock
}

func (m *MockGenerationSink) RequestTicketGeneration(ctx context.Context, req models.TicketGenerationRequest) error {
	args := m.Called(ctx, req)

	return args.Error(0)
}
