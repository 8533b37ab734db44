package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mylabook/opsflow/internal/domain/events"
	"github.com/mylabook/opsflow/internal/domain/models"
	"github.com/mylabook/opsflow/internal/infrastructure/database"
	"github.com/mylabook/opsflow/internal/testutil"
	"github.com/mylabook/opsflow/pkg/auth"
	"github.com/stretchr/testify/mock"
)

var testUser = &auth.UserSession{ID: "u-1", Name: "sam"}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// newTestManager wires every service against a fresh in-memory store with a fixed clock.
func newTestManager(t *testing.T) (*ServiceManager, *database.Connection) {
	t.Helper()
	conn := testutil.NewTestDB(t)
	sm := NewServiceManager(conn, time.Second)

	clock := fixedClock(testutil.Now)
	sm.Templates.now = clock
	sm.Steps.now = clock
	sm.Entities.now = clock
	sm.Notifications.now = clock
	return sm, conn
}

// recorder captures published events by type.
type recorder struct {
	mu     sync.Mutex
	events map[events.EventType][]interface{}
}

func record(bus *EventBus, types ...events.EventType) *recorder {
	r := &recorder{events: make(map[events.EventType][]interface{})}
	for _, et := range types {
		et := et
		bus.Subscribe(et, func(ctx context.Context, payload interface{}) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events[et] = append(r.events[et], payload)
			return nil
		})
	}
	return r
}

func (r *recorder) get(et events.EventType) []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]interface{}(nil), r.events[et]...)
}

// mockStepRepository lets tests force store failures.
type mockStepRepository struct {
	mock.Mock
}

func (m *mockStepRepository) Get(ctx context.Context, id int64) (*models.StepInstance, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.StepInstance), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStepRepository) ListByEntity(ctx context.Context, kind models.EntityKind, entityID int64) ([]models.StepInstance, error) {
	args := m.Called(ctx, kind, entityID)
	if v := args.Get(0); v != nil {
		return v.([]models.StepInstance), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStepRepository) ListByAssignee(ctx context.Context, assignee string) ([]models.StepInstance, error) {
	args := m.Called(ctx, assignee)
	if v := args.Get(0); v != nil {
		return v.([]models.StepInstance), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStepRepository) MaxOrder(ctx context.Context, kind models.EntityKind, entityID int64) (int, error) {
	args := m.Called(ctx, kind, entityID)
	return args.Int(0), args.Error(1)
}

func (m *mockStepRepository) CreateBatch(ctx context.Context, steps []*models.StepInstance) error {
	return m.Called(ctx, steps).Error(0)
}

func (m *mockStepRepository) Update(ctx context.Context, step *models.StepInstance) error {
	return m.Called(ctx, step).Error(0)
}

func (m *mockStepRepository) UpdateOrder(ctx context.Context, orderedIDs []int64) error {
	return m.Called(ctx, orderedIDs).Error(0)
}

func (m *mockStepRepository) Delete(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockStepRepository) DeleteByEntity(ctx context.Context, kind models.EntityKind, entityID int64) (int64, error) {
	args := m.Called(ctx, kind, entityID)
	return args.Get(0).(int64), args.Error(1)
}

// passthroughTx runs fn without a database.
type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (passthroughTx) WithRetry(ctx context.Context, fn func(ctx context.Context) error, _ int) error {
	return fn(ctx)
}

type mockEntityRepository struct {
	mock.Mock
}

func (m *mockEntityRepository) Get(ctx context.Context, kind models.EntityKind, id int64) (*models.Entity, error) {
	args := m.Called(ctx, kind, id)
	if v := args.Get(0); v != nil {
		return v.(*models.Entity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEntityRepository) List(ctx context.Context, kind models.EntityKind) ([]*models.Entity, error) {
	args := m.Called(ctx, kind)
	if v := args.Get(0); v != nil {
		return v.([]*models.Entity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEntityRepository) Create(ctx context.Context, entity *models.Entity) error {
	return m.Called(ctx, entity).Error(0)
}

func (m *mockEntityRepository) Delete(ctx context.Context, kind models.EntityKind, id int64) (bool, error) {
	args := m.Called(ctx, kind, id)
	return args.Bool(0), args.Error(1)
}

type mockTemplateRepository struct {
	mock.Mock
}

func (m *mockTemplateRepository) Get(ctx context.Context, id int64) (*models.Template, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.Template), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTemplateRepository) FindByName(ctx context.Context, name string) (*models.Template, error) {
	args := m.Called(ctx, name)
	if v := args.Get(0); v != nil {
		return v.(*models.Template), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTemplateRepository) List(ctx context.Context, categoryID *int64) ([]*models.Template, error) {
	args := m.Called(ctx, categoryID)
	if v := args.Get(0); v != nil {
		return v.([]*models.Template), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTemplateRepository) Create(ctx context.Context, template *models.Template) error {
	return m.Called(ctx, template).Error(0)
}

func (m *mockTemplateRepository) Update(ctx context.Context, template *models.Template) error {
	return m.Called(ctx, template).Error(0)
}

func (m *mockTemplateRepository) Delete(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockTemplateRepository) IncrementUsage(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}
