// Package routing provides the lead routing bounded context module.
// This file defines the module that encapsulates all routing setup and route registration.
package routing

import (
	"context"

	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/routing/engine"
	"leadflow_backend/internal/routing/handler"
	"leadflow_backend/internal/routing/ledger"
	"leadflow_backend/internal/routing/reassign"
	"leadflow_backend/internal/routing/repository"
	"leadflow_backend/internal/routing/service"
	"leadflow_backend/internal/routing/tracker"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config combines the config interfaces the routing module needs.
type Config interface {
	config.RoutingConfig
}

// Module is the routing bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	router  *service.Router
	sweeper *reassign.Sweeper
	tracker *tracker.Tracker
	repo    *repository.Repository
}

// NewModule creates and initializes the routing module with all its dependencies.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, val *validator.Validator, cfg Config, log *logger.Logger) *Module {
	repo := repository.New(pool)

	loadTracker := tracker.New(repo)
	ruleEngine := engine.New(repo, loadTracker, log)
	assignmentLedger := ledger.New(repo, loadTracker, eventBus, log)

	routerSvc := service.NewRouter(repo, ruleEngine, assignmentLedger, cfg.GetDefaultPoolID(), log)
	mgmtSvc := service.NewManagement(repo, loadTracker)

	sweeper := reassign.New(repo, ruleEngine, assignmentLedger, log, cfg.GetReassignmentSweepInterval(), 100)

	h := handler.New(routerSvc, mgmtSvc, val)

	return &Module{
		handler: h,
		router:  routerSvc,
		sweeper: sweeper,
		tracker: loadTracker,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "routing"
}

// Router returns the routing service for external use.
func (m *Module) Router() *service.Router {
	return m.router
}

// Repository returns the routing repository for external collaborators.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RunSweeper starts the reassignment sweep loop; it blocks until the context
// is cancelled.
func (m *Module) RunSweeper(ctx context.Context) {
	m.sweeper.Run(ctx)
}

// SweepOnce runs one full reassignment pass, used by the scheduler worker.
func (m *Module) SweepOnce(ctx context.Context) error {
	return m.sweeper.SweepAll(ctx)
}

// RegisterRoutes mounts routing routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterLeadRoutes(ctx.V1.Group("/leads"))
	m.handler.RegisterAgentRoutes(ctx.V1.Group("/agents"))
	m.handler.RegisterRuleRoutes(
		ctx.V1.Group("/assignment-rules"),
		ctx.V1.Group("/agent-pools"),
		ctx.V1.Group("/reassignment-rules"),
	)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
