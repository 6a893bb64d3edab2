package mocks

import (
	"context"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockTriggerRepository is a mock implementation of persistence.TriggerRepository interface.
type MockTriggerRepository struct {
	mock.Mock
}

func (m *MockTriggerRepository) Record(ctx context.Context, record *models.TriggerRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockTriggerRepository) Get(ctx context.Context, ticketID, milestoneID string) (*models.TriggerRecord, error) {
	args := m.Called(ctx, ticketID, milestoneID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.TriggerRecord), args.Error(1)
}

func (m *MockTriggerRepository) Update(ctx context.Context, record *models.TriggerRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockTriggerRepository) ListByTicket(ctx context.Context, ticketID string) ([]*models.TriggerRecord, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.TriggerRecord), args.Error(1)
}

// MockPersistence delegates repositories to a real store and mocks the lifecycle calls.
type MockPersistence struct {
	mock.Mock

	persistence.Persistence
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
