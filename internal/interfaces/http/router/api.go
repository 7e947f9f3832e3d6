package router

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/pricecycle/backend/internal/infrastructure/auth"
	"github.com/pricecycle/backend/internal/infrastructure/config"
	"github.com/pricecycle/backend/internal/infrastructure/logger"
	"github.com/pricecycle/backend/internal/interfaces/http/handler"
	"github.com/pricecycle/backend/internal/interfaces/http/middleware"
)

// Handlers are the handlers mounted by NewEngine
type Handlers struct {
	Automation  *handler.AutomationHandler
	Diagnostics *handler.DiagnosticsHandler
	Events      *handler.EventStreamHandler
	System      *handler.SystemHandler
}

// EngineConfig carries the cross-cutting dependencies of the engine
type EngineConfig struct {
	HTTP           config.HTTPConfig
	ServiceName    string
	TracingEnabled bool
	Meter          metric.Meter // nil disables HTTP metrics
	Tokens         *auth.TokenService
	Logger         *zap.Logger
	// Context bounds background work such as rate limiter cleanup
	Context context.Context
}

const eventsPath = "/api/v1/automation/events"

// NewEngine builds the gin engine with the middleware chain and every route
func NewEngine(cfg EngineConfig, h Handlers) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Invalid trusted proxies, trusting none", zap.Error(err))
			_ = engine.SetTrustedProxies(nil)
		}
	} else {
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(
		logger.Recovery(log),
		middleware.Tracing(cfg.ServiceName, cfg.TracingEnabled),
		middleware.RequestID(log),
		logger.GinMiddleware(log, "/health", eventsPath),
		middleware.Secure(),
		middleware.CORS(middleware.DefaultCORSConfig(cfg.HTTP.CORSOrigins...)),
		middleware.HTTPMetrics(cfg.Meter),
	)
	if cfg.HTTP.MaxBodyBytes > 0 {
		engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodyBytes))
	}

	engine.GET("/health", h.System.Health)

	var api []gin.HandlerFunc
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		if cfg.Context != nil {
			go limiter.Cleanup(cfg.Context, time.Minute)
		}
		api = append(api, middleware.RateLimit(limiter))
	}
	if cfg.HTTP.AuthEnabled && cfg.Tokens != nil {
		api = append(api, middleware.BearerAuth(middleware.BearerAuthConfig{
			Tokens: cfg.Tokens,
			Logger: log,
		}))
	}
	api = append(api, middleware.SpanEnricher())

	r := NewRouter(engine, WithAPIVersion("v1"), WithAPIMiddleware(api...))

	r.Register(NewDomainGroup("automation", "/automation").
		POST("/start", h.Automation.Start).
		POST("/stop", h.Automation.Stop).
		GET("/status", h.Automation.Status).
		GET("/events", h.Events.Stream))

	r.Register(NewDomainGroup("diagnostics", "/diagnostics").
		POST("/connection", h.Diagnostics.Connection).
		GET("/products", h.Diagnostics.Products).
		GET("/products/:id", h.Diagnostics.Product).
		GET("/orders", h.Diagnostics.Orders).
		GET("/awaiting-shipment", h.Diagnostics.AwaitingShipment).
		POST("/price-change", h.Diagnostics.PriceChange))

	r.Register(NewDomainGroup("system", "/system").
		GET("/info", h.System.GetSystemInfo).
		GET("/ping", h.System.Ping))

	r.Setup()
	return engine
}
