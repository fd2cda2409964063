package mocks

import (
	"context"
	"time"

	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

func resultArg(args mock.Arguments) (map[string]any, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(map[string]any), args.Error(1)
}

// MockNotificationPort is a mock implementation of protocol.NotificationPort interface.
type MockNotificationPort struct {
	mock.Mock
}

func (m *MockNotificationPort) Create(ctx context.Context, notification models.Notification) error {
	args := m.Called(ctx, notification)

	return args.Error(0)
}

// MockCommunicationPort is a mock implementation of protocol.CommunicationPort interface.
type MockCommunicationPort struct {
	mock.Mock
}

func (m *MockCommunicationPort) SendEmail(ctx context.Context, to, subject, body string) (map[string]any, error) {
	return resultArg(m.Called(ctx, to, subject, body))
}

func (m *MockCommunicationPort) SendSMS(ctx context.Context, to, body string) (map[string]any, error) {
	return resultArg(m.Called(ctx, to, body))
}

// MockRecordPort is a mock implementation of protocol.RecordPort interface.
type MockRecordPort struct {
	mock.Mock
}

func (m *MockRecordPort) CreateTask(ctx context.Context, task protocol.TaskRequest) (map[string]any, error) {
	return resultArg(m.Called(ctx, task))
}

func (m *MockRecordPort) UpdateStatus(ctx context.Context, entityID, status string) (map[string]any, error) {
	return resultArg(m.Called(ctx, entityID, status))
}

func (m *MockRecordPort) AssignUser(ctx context.Context, entityID, userID string) (map[string]any, error) {
	return resultArg(m.Called(ctx, entityID, userID))
}

func (m *MockRecordPort) AddNote(ctx context.Context, entityID, note string) (map[string]any, error) {
	return resultArg(m.Called(ctx, entityID, note))
}

func (m *MockRecordPort) UpdateField(ctx context.Context, entityID, field string, value any) (map[string]any, error) {
	return resultArg(m.Called(ctx, entityID, field, value))
}

// MockWebhookClient is a mock implementation of protocol.WebhookClient interface.
type MockWebhookClient struct {
	mock.Mock
}

func (m *MockWebhookClient) Send(ctx context.Context, request protocol.WebhookRequest) (*protocol.WebhookResponse, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*protocol.WebhookResponse), args.Error(1)
}

// MockScheduler is a mock implementation of protocol.Scheduler interface.
type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) ScheduleResume(ctx context.Context, executionID string, resumeAt time.Time) error {
	args := m.Called(ctx, executionID, resumeAt)

	return args.Error(0)
}

func (m *MockScheduler) CancelResume(ctx context.Context, executionID string) error {
	args := m.Called(ctx, executionID)

	return args.Error(0)
}

func (m *MockScheduler) RegisterCron(ctx context.Context, workflowID, cronExpression string) error {
	args := m.Called(ctx, workflowID, cronExpression)

	return args.Error(0)
}

func (m *MockScheduler) UnregisterCron(ctx context.Context, workflowID string) error {
	args := m.Called(ctx, workflowID)

	return args.Error(0)
}
