package apiserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/prodflow/prodflow/pkg/apiserver/handlers"
	"github.com/prodflow/prodflow/pkg/apiserver/middleware"
	"github.com/prodflow/prodflow/pkg/auth"
	"github.com/prodflow/prodflow/pkg/catalog"
	"github.com/prodflow/prodflow/pkg/config"
	"github.com/prodflow/prodflow/pkg/eventbus"
	"github.com/prodflow/prodflow/pkg/softdelete"
	"github.com/prodflow/prodflow/pkg/store/postgres"
	redisclient "github.com/prodflow/prodflow/pkg/store/redis"
	"github.com/prodflow/prodflow/pkg/workflow"
)

type Server struct {
	router  *gin.Engine
	db      *postgres.Store
	redis   *redisclient.Client
	tokens  *auth.TokenManager
	cfg     *config.Config
	logger  *zap.Logger
	deleter *softdelete.Coordinator
	catalog *catalog.Service
	flow    *workflow.Service
	outbox  *postgres.OutboxRepository
}

// NewServer wires the services over db. redis may be nil; bus receives
// production change notifications after each committed transition.
func NewServer(db *postgres.Store, redis *redisclient.Client, bus eventbus.Publisher, tokens *auth.TokenManager, cfg *config.Config, logger *zap.Logger) *Server {
	if bus == nil {
		bus = eventbus.Nop{}
	}
	deleter := softdelete.NewCoordinator(db, nil, logger)
	s := &Server{
		db:      db,
		redis:   redis,
		tokens:  tokens,
		cfg:     cfg,
		logger:  logger,
		deleter: deleter,
		catalog: catalog.NewService(db, deleter, logger),
		flow:    workflow.NewService(db, deleter, bus, logger),
		outbox:  postgres.NewOutboxRepository(db.DB()),
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.CORS())
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(middleware.Metrics())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.Use(middleware.Auth(s.tokens))
	api.Use(middleware.RateLimit(s.cfg.RateLimit))

	handlers.NewCatalogHandler(s.catalog, s.logger).Register(api)
	s.registerWorkflow(api)

	s.router = r
}

func (s *Server) registerWorkflow(api *gin.RouterGroup) {
	h := handlers.NewWorkflowHandler(s.flow, s.outbox, s.logger)
	del := func(kind softdelete.Kind) gin.HandlerFunc {
		return handlers.DeleteHandler(s.logger, s.deleter, kind)
	}

	api.POST("/plans", h.CreatePlan)
	api.GET("/plans", h.ListPlans)
	api.GET("/plans/:id", h.GetPlan)
	api.PUT("/plans/:id", h.UpdatePlan)
	api.POST("/plans/:id/status", h.TransitionPlan)
	api.DELETE("/plans/:id", del(softdelete.KindProductionPlan))

	api.POST("/orders", h.CreateOrder)
	api.GET("/orders", h.ListOrders)
	api.GET("/orders/:id", h.GetOrder)
	api.PUT("/orders/:id", h.UpdateOrder)
	api.POST("/orders/:id/status", h.TransitionOrder)
	api.DELETE("/orders/:id", del(softdelete.KindProductionOrder))
	api.GET("/orders/:id/events", h.OrderEvents)
	api.GET("/orders/:id/stages", h.ListStages)
	api.GET("/orders/:id/outputs", h.ListOutputs)

	api.POST("/stages", h.CreateStage)
	api.GET("/stages/:id", h.GetStage)
	api.PUT("/stages/:id", h.UpdateStage)
	api.POST("/stages/:id/status", h.TransitionStage)
	api.DELETE("/stages/:id", del(softdelete.KindProductionStage))
	api.POST("/stages/:id/resources", h.AddStageResource)
	api.DELETE("/stages/:id/resources/:resource_id", h.RemoveStageResource)
	api.GET("/stages/:id/quality-checks", h.ListQualityChecks)

	api.POST("/quality-checks", h.CreateQualityCheck)
	api.GET("/quality-checks/:id", h.GetQualityCheck)
	api.PUT("/quality-checks/:id/items", h.UpdateQualityCheckItems)
	api.DELETE("/quality-checks/:id", h.DeleteQualityCheck)

	api.POST("/outputs", h.CreateOutput)
	api.GET("/outputs/:id", h.GetOutput)
	api.PUT("/outputs/:id/quality-status", h.UpdateQualityStatus)
	api.DELETE("/outputs/:id", del(softdelete.KindProductionOutput))
	api.GET("/outputs/:id/quality-checks", h.ListOutputQualityChecks)
	api.POST("/outputs/:id/quality-checks", h.LinkQualityCheck)
	api.DELETE("/outputs/:id/quality-checks/:check_id", h.UnlinkQualityCheck)
}

type healthResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks"`
	Uptime   string            `json:"uptime,omitempty"`
	Degraded bool              `json:"-"`
}

var startedAt = time.Now()

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	res := healthResponse{Status: "ok", Checks: map[string]string{}, Uptime: time.Since(startedAt).Round(time.Second).String()}
	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			s.logger.Warn("health check failed", zap.String("component", name), zap.Error(err))
			res.Checks[name] = "unavailable"
			res.Degraded = true
			return
		}
		res.Checks[name] = "ok"
	}

	check("database", s.pingDatabase)
	if s.redis != nil {
		check("redis", s.redis.Ping)
	}

	if res.Degraded {
		res.Status = "degraded"
		c.JSON(http.StatusServiceUnavailable, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) pingDatabase(ctx context.Context) error {
	sqlDB, err := s.db.DB().DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
