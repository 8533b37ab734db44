package services

import (
	"time"

	"github.com/mylabook/opsflow/internal/domain/ports"
	"github.com/mylabook/opsflow/internal/infrastructure/database"
	"github.com/mylabook/opsflow/internal/infrastructure/persistence"
	"github.com/mylabook/opsflow/pkg/expression"
)

// ServiceManager orchestrates all services with dependency injection
type ServiceManager struct {
	conn *database.Connection

	TxManager     *persistence.TransactionManager
	EventBus      *EventBus
	Conditions    *expression.Engine
	Templates     *TemplateService
	Steps         *StepService
	Entities      *EntityService
	Notifications *NotificationService
}

// Repositories groups the persistence ports the services run on.
type Repositories struct {
	Templates ports.TemplateRepository
	Entities  ports.EntityRepository
	Steps     ports.StepRepository
	Tx        ports.Transactor
}

// NewServiceManager wires every service against the SQL repositories of conn.
func NewServiceManager(conn *database.Connection, notificationReadTimeout time.Duration) *ServiceManager {
	db := conn.DB()
	txManager := persistence.NewTransactionManager(db)

	sm := NewServiceManagerWithRepositories(Repositories{
		Templates: persistence.NewTemplateRepository(db),
		Entities:  persistence.NewEntityRepository(db),
		Steps:     persistence.NewStepRepository(db),
		Tx:        txManager,
	}, notificationReadTimeout)
	sm.conn = conn
	sm.TxManager = txManager
	return sm
}

// NewServiceManagerWithRepositories wires the services against arbitrary ports (tests).
func NewServiceManagerWithRepositories(repos Repositories, notificationReadTimeout time.Duration) *ServiceManager {
	sm := &ServiceManager{}

	// Initialize services in dependency order
	sm.EventBus = NewEventBus()
	sm.Conditions = expression.NewEngine()
	sm.Templates = NewTemplateService(repos.Templates, repos.Tx, sm.Conditions, sm.EventBus)
	sm.Steps = NewStepService(repos.Entities, repos.Steps, repos.Templates, repos.Tx, sm.Conditions, sm.EventBus)
	sm.Entities = NewEntityService(repos.Entities, repos.Steps, repos.Tx, sm.Steps)
	sm.Notifications = NewNotificationService(repos.Steps, notificationReadTimeout)

	RegisterDelayAlerts(sm.EventBus)
	return sm
}

// Connection returns the database connection the services were built on, if any.
func (sm *ServiceManager) Connection() *database.Connection {
	return sm.conn
}
