package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mylabook/opsflow/internal/application/services"
	"github.com/mylabook/opsflow/internal/domain/models"
	"github.com/mylabook/opsflow/internal/interfaces/rest"
	"github.com/mylabook/opsflow/pkg/auth"
	"github.com/mylabook/opsflow/pkg/constants"
	appErrors "github.com/mylabook/opsflow/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var sessionUser = auth.UserSession{ID: "user123", Name: "Test User", Email: "test@example.com"}

type fixture struct {
	router        *gin.Engine
	templates     *MockTemplateService
	entities      *MockEntityService
	steps         *MockStepService
	notifications *MockNotificationService
	tracker       *MockTracker
}

func newFixture(withUser bool) *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{
		templates:     new(MockTemplateService),
		entities:      new(MockEntityService),
		steps:         new(MockStepService),
		notifications: new(MockNotificationService),
		tracker:       new(MockTracker),
	}

	f.router = gin.New()
	api := f.router.Group("/api")
	if withUser {
		api.Use(func(c *gin.Context) {
			c.Set(constants.ContextKeyUser, sessionUser)
			c.Next()
		})
	}
	rest.RegisterRoutes(api, rest.NewHandlers(f.templates, f.entities, f.steps, f.notifications, f.tracker))
	return f
}

func (f *fixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewBuffer(raw)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestTemplateHandler_List(t *testing.T) {
	f := newFixture(true)
	f.templates.On("ListTemplates", mock.Anything).Return([]*models.Template{{ID: 1, Name: "Lead"}}, nil)
	f.templates.On("ListTemplatesByCategory", mock.Anything, int64(3)).Return([]*models.Template{}, nil)

	w := f.do(http.MethodGet, "/api/templates", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["templates"], 1)

	w = f.do(http.MethodGet, "/api/templates?category_id=3", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/templates?category_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "abc", decode(t, w)["id"])

	f.templates.AssertExpectations(t)
}

func TestTemplateHandler_CreateAndDuplicate(t *testing.T) {
	f := newFixture(true)
	input := models.TemplateInput{Name: "Lead", Steps: []models.TemplateStep{{Name: "Call", ProbabilityPercent: 100}}}

	f.templates.On("CreateTemplate", mock.Anything, input, &sessionUser).Return(&models.Template{ID: 9, Name: "Lead"}, nil)
	f.templates.On("DuplicateTemplate", mock.Anything, int64(9), "", &sessionUser).Return(&models.Template{ID: 10, Name: "Lead (Copy)"}, nil)
	f.templates.On("DuplicateTemplate", mock.Anything, int64(9), "Seed", &sessionUser).Return(&models.Template{ID: 11, Name: "Seed"}, nil)

	w := f.do(http.MethodPost, "/api/templates", input)
	assert.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Template created successfully", body[constants.FieldMessage])
	assert.Equal(t, float64(9), body["template"].(map[string]interface{})["id"])

	w = f.do(http.MethodPost, "/api/templates/9/duplicate", nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Lead (Copy)", decode(t, w)["template"].(map[string]interface{})["name"])

	w = f.do(http.MethodPost, "/api/templates/9/duplicate", rest.DuplicateRequest{Name: "Seed"})
	assert.Equal(t, http.StatusCreated, w.Code)

	f.templates.AssertExpectations(t)
}

func TestTemplateHandler_Errors(t *testing.T) {
	f := newFixture(true)
	f.templates.On("GetTemplate", mock.Anything, int64(404)).Return(nil, appErrors.NewNotFoundError("template", "404"))
	f.templates.On("DeleteTemplate", mock.Anything, int64(5), &sessionUser).
		Return(appErrors.NewTransientError("delete template", assert.AnError))

	w := f.do(http.MethodGet, "/api/templates/404", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decode(t, w)
	assert.Equal(t, "NOT_FOUND", body["code"])
	assert.Equal(t, "404", body["id"])
	assert.NotEmpty(t, body["error"])
	assert.NotEmpty(t, body["message"])

	w = f.do(http.MethodDelete, "/api/templates/5", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "TRANSIENT_ERROR", decode(t, w)["code"])

	w = f.do(http.MethodGet, "/api/templates/zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/templates", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, rec)["code"])
}

func TestEntityHandler_RoutesPerKind(t *testing.T) {
	f := newFixture(true)
	kinds := map[string]models.EntityKind{
		"leads":        models.EntityKindLead,
		"fundraises":   models.EntityKindFundRaise,
		"finops-tasks": models.EntityKindFinOps,
	}
	for segment, kind := range kinds {
		f.steps.On("Completion", mock.Anything, kind, int64(7)).Return(50, nil).Once()

		w := f.do(http.MethodGet, "/api/"+segment+"/7/completion", nil)
		assert.Equal(t, http.StatusOK, w.Code, segment)
		assert.Equal(t, float64(50), decode(t, w)["completion"])
	}
	f.steps.AssertExpectations(t)
}

func TestEntityHandler_CreateAndGet(t *testing.T) {
	f := newFixture(true)
	tmplID := int64(2)
	input := models.EntityInput{Name: "Acme", TemplateID: &tmplID, Instantiate: true}
	detail := &models.EntityDetail{Entity: &models.Entity{ID: 1, Kind: models.EntityKindLead, Name: "Acme"}, Completion: 0}

	f.entities.On("CreateEntity", mock.Anything, models.EntityKindLead, input, &sessionUser).Return(detail, nil)
	f.entities.On("GetEntity", mock.Anything, models.EntityKindLead, int64(1)).Return(detail, nil)
	f.entities.On("DeleteEntity", mock.Anything, models.EntityKindLead, int64(1)).Return(nil)
	f.entities.On("ListEntities", mock.Anything, models.EntityKindLead).Return([]*models.Entity{detail.Entity}, nil)

	w := f.do(http.MethodPost, "/api/leads", input)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Lead created successfully", decode(t, w)[constants.FieldMessage])

	w = f.do(http.MethodGet, "/api/leads/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/leads", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodDelete, "/api/leads/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	f.entities.AssertExpectations(t)
}

func TestEntityHandler_StepOperations(t *testing.T) {
	f := newFixture(true)
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	f.steps.On("ListSteps", mock.Anything, models.EntityKindFinOps, int64(3)).Return([]models.StepView{}, nil)
	f.steps.On("AddStep", mock.Anything, models.EntityKindFinOps, int64(3), models.StepInput{Name: "Accruals"}, &sessionUser).
		Return(&models.StepInstance{ID: 20, Name: "Accruals"}, nil)
	f.steps.On("InstantiateFromTemplate", mock.Anything, models.EntityKindFinOps, int64(3), int64(4),
		services.InstantiateOptions{StartDate: &start}, &sessionUser).Return([]models.StepInstance{{ID: 21}}, nil)
	f.steps.On("Reorder", mock.Anything, models.EntityKindFinOps, int64(3), []int64{21, 20}, &sessionUser).Return(nil)
	f.steps.On("DeleteStep", mock.Anything, models.EntityKindFinOps, int64(3), int64(20), &sessionUser).Return(nil)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/finops-tasks/3/steps", nil).Code)
	assert.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/finops-tasks/3/steps", models.StepInput{Name: "Accruals"}).Code)
	assert.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/finops-tasks/3/steps/instantiate",
		rest.InstantiateRequest{TemplateID: 4, StartDate: &start}).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPut, "/api/finops-tasks/3/steps/reorder",
		rest.ReorderRequest{OrderedIDs: []int64{21, 20}}).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodDelete, "/api/finops-tasks/3/steps/20", nil).Code)

	// template_id is required
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/finops-tasks/3/steps/instantiate", map[string]int{}).Code)

	f.steps.AssertExpectations(t)
}

func TestEntityHandler_ReorderRejection(t *testing.T) {
	f := newFixture(true)
	f.steps.On("Reorder", mock.Anything, models.EntityKindLead, int64(1), []int64{1, 99}, &sessionUser).
		Return(appErrors.NewValidationError("ordered_ids", "step does not belong to this entity").WithID("99"))

	w := f.do(http.MethodPut, "/api/leads/1/steps/reorder", rest.ReorderRequest{OrderedIDs: []int64{1, 99}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	assert.Equal(t, "99", body["id"])
}

func TestEntityHandler_SetStatus(t *testing.T) {
	f := newFixture(true)
	change := models.StatusChange{Status: "delayed", DelayReason: "technical_issue", DelayNotes: "ERP down"}
	view := &models.StepView{
		StepInstance:    models.StepInstance{ID: 8, Status: models.StepStatusDelayed},
		EffectiveStatus: models.StepStatusDelayed,
	}
	f.steps.On("SetStatus", mock.Anything, models.EntityKindFinOps, int64(8), change, &sessionUser).Return(view, nil)
	f.steps.On("SetStatus", mock.Anything, models.EntityKindFinOps, int64(8), models.StatusChange{Status: "delayed"}, &sessionUser).
		Return(nil, appErrors.NewValidationError("delay_reason", "a delay reason is required").WithID("8"))

	w := f.do(http.MethodPut, "/api/finops-tasks/steps/8/status", change)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "delayed", decode(t, w)["step"].(map[string]interface{})["effective_status"])

	w = f.do(http.MethodPut, "/api/finops-tasks/steps/8/status", models.StatusChange{Status: "delayed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "8", decode(t, w)["id"])
}

func TestNotificationHandler(t *testing.T) {
	f := newFixture(true)
	list := []models.Notification{{ID: 5, Type: models.NotificationAssigned}, {ID: 1005, Type: models.NotificationOverdue, Read: true}}

	f.tracker.On("Track", "Test User").Return()
	f.notifications.On("GetMyNotifications", mock.Anything, "Test User").Return(list)
	f.notifications.On("MarkAsRead", mock.Anything, "Test User", int64(1005), models.NotificationOverdue).
		Return(&models.Notification{ID: 1005, Type: models.NotificationOverdue, StepID: 5, Read: true}, nil)
	f.tracker.On("RefreshUser", mock.Anything, "Test User").Return()
	f.tracker.On("Snapshot", "Test User").Return(services.NotificationSnapshot{Unread: 3, RefreshedAt: time.Now()}, true)

	w := f.do(http.MethodGet, "/api/notifications", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["data"], 2)
	assert.Equal(t, float64(1), body["unread"])

	w = f.do(http.MethodPut, "/api/notifications/1005/read?type=overdue", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, "Notification marked as read", body["message"])
	assert.Equal(t, float64(5), body["data"].(map[string]interface{})["step_id"])

	w = f.do(http.MethodGet, "/api/notifications/summary", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decode(t, w)["unread"])

	f.notifications.AssertExpectations(t)
	f.tracker.AssertExpectations(t)
}

func TestNotificationHandler_MarkAsReadErrors(t *testing.T) {
	f := newFixture(true)
	f.notifications.On("MarkAsRead", mock.Anything, "Test User", int64(1005), models.NotificationType("")).
		Return(nil, appErrors.NewValidationError("type", "notification id is shared").WithID("1005"))

	w := f.do(http.MethodPut, "/api/notifications/1005/read", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	assert.Equal(t, "1005", body["id"])

	w = f.do(http.MethodPut, "/api/notifications/1005/read?type=urgent", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.tracker.AssertNotCalled(t, "RefreshUser", mock.Anything, mock.Anything)
	f.notifications.AssertNumberOfCalls(t, "MarkAsRead", 1)
}

func TestNotificationHandler_RequiresUser(t *testing.T) {
	f := newFixture(false)

	w := f.do(http.MethodGet, "/api/notifications", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decode(t, w)["code"])
	f.notifications.AssertNotCalled(t, "GetMyNotifications", mock.Anything, mock.Anything)
}
