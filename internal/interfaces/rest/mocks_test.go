package rest_test

import (
	"context"

	"github.com/mylabook/opsflow/internal/application/services"
	"github.com/mylabook/opsflow/internal/domain/models"
	"github.com/mylabook/opsflow/pkg/auth"
	"github.com/stretchr/testify/mock"
)

type MockTemplateService struct {
	mock.Mock
}

func (m *MockTemplateService) GetTemplate(ctx context.Context, id int64) (*models.Template, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Template), args.Error(1)
}

func (m *MockTemplateService) ListTemplates(ctx context.Context) ([]*models.Template, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Template), args.Error(1)
}

func (m *MockTemplateService) ListTemplatesByCategory(ctx context.Context, categoryID int64) ([]*models.Template, error) {
	args := m.Called(ctx, categoryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Template), args.Error(1)
}

func (m *MockTemplateService) CreateTemplate(ctx context.Context, input models.TemplateInput, user *auth.UserSession) (*models.Template, error) {
	args := m.Called(ctx, input, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Template), args.Error(1)
}

func (m *MockTemplateService) UpdateTemplate(ctx context.Context, id int64, input models.TemplateInput, user *auth.UserSession) (*models.Template, error) {
	args := m.Called(ctx, id, input, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Template), args.Error(1)
}

func (m *MockTemplateService) DuplicateTemplate(ctx context.Context, id int64, newName string, user *auth.UserSession) (*models.Template, error) {
	args := m.Called(ctx, id, newName, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Template), args.Error(1)
}

func (m *MockTemplateService) DeleteTemplate(ctx context.Context, id int64, user *auth.UserSession) error {
	return m.Called(ctx, id, user).Error(0)
}

type MockEntityService struct {
	mock.Mock
}

func (m *MockEntityService) CreateEntity(ctx context.Context, kind models.EntityKind, input models.EntityInput, user *auth.UserSession) (*models.EntityDetail, error) {
	args := m.Called(ctx, kind, input, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EntityDetail), args.Error(1)
}

func (m *MockEntityService) GetEntity(ctx context.Context, kind models.EntityKind, id int64) (*models.EntityDetail, error) {
	args := m.Called(ctx, kind, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EntityDetail), args.Error(1)
}

func (m *MockEntityService) ListEntities(ctx context.Context, kind models.EntityKind) ([]*models.Entity, error) {
	args := m.Called(ctx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Entity), args.Error(1)
}

func (m *MockEntityService) DeleteEntity(ctx context.Context, kind models.EntityKind, id int64) error {
	return m.Called(ctx, kind, id).Error(0)
}

type MockStepService struct {
	mock.Mock
}

func (m *MockStepService) InstantiateFromTemplate(ctx context.Context, kind models.EntityKind, entityID, templateID int64, opts services.InstantiateOptions, user *auth.UserSession) ([]models.StepInstance, error) {
	args := m.Called(ctx, kind, entityID, templateID, opts, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.StepInstance), args.Error(1)
}

func (m *MockStepService) AddStep(ctx context.Context, kind models.EntityKind, entityID int64, input models.StepInput, user *auth.UserSession) (*models.StepInstance, error) {
	args := m.Called(ctx, kind, entityID, input, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StepInstance), args.Error(1)
}

func (m *MockStepService) Reorder(ctx context.Context, kind models.EntityKind, entityID int64, orderedIDs []int64, user *auth.UserSession) error {
	return m.Called(ctx, kind, entityID, orderedIDs, user).Error(0)
}

func (m *MockStepService) DeleteStep(ctx context.Context, kind models.EntityKind, entityID, stepID int64, user *auth.UserSession) error {
	return m.Called(ctx, kind, entityID, stepID, user).Error(0)
}

func (m *MockStepService) SetStatus(ctx context.Context, kind models.EntityKind, stepID int64, change models.StatusChange, user *auth.UserSession) (*models.StepView, error) {
	args := m.Called(ctx, kind, stepID, change, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StepView), args.Error(1)
}

func (m *MockStepService) ListSteps(ctx context.Context, kind models.EntityKind, entityID int64) ([]models.StepView, error) {
	args := m.Called(ctx, kind, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.StepView), args.Error(1)
}

func (m *MockStepService) Completion(ctx context.Context, kind models.EntityKind, entityID int64) (int, error) {
	args := m.Called(ctx, kind, entityID)
	return args.Int(0), args.Error(1)
}

type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) GetMyNotifications(ctx context.Context, userName string) []models.Notification {
	return m.Called(ctx, userName).Get(0).([]models.Notification)
}

func (m *MockNotificationService) MarkAsRead(ctx context.Context, userName string, id int64, kind models.NotificationType) (*models.Notification, error) {
	args := m.Called(ctx, userName, id, kind)
	if v := args.Get(0); v != nil {
		return v.(*models.Notification), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockTracker struct {
	mock.Mock
}

func (m *MockTracker) Track(userName string) {
	m.Called(userName)
}

func (m *MockTracker) RefreshUser(ctx context.Context, userName string) {
	m.Called(ctx, userName)
}

func (m *MockTracker) Snapshot(userName string) (services.NotificationSnapshot, bool) {
	args := m.Called(userName)
	return args.Get(0).(services.NotificationSnapshot), args.Bool(1)
}
