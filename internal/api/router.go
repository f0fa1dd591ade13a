package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/sendit/parcel-service/internal/api/handler"
	"github.com/sendit/parcel-service/internal/api/middleware"
	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
)

// Services are the use cases the HTTP layer exposes.
type Services struct {
	Parcels  ports.ParcelService
	Couriers ports.CourierService
	Dispatch ports.DispatchService
	Payments ports.PaymentService
	Users    ports.UserService
	Inbox    ports.InboxService
}

// RouterConfig carries everything NewRouter needs besides the services.
type RouterConfig struct {
	JWTSecret    string
	Currency     string
	HealthChecks map[string]handler.HealthCheck
	Logger       zerolog.Logger
	// Metrics overrides the default Prometheus registry. Domain metrics are
	// always on the default registry.
	Metrics *prometheus.Registry
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(svc Services, cfg RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(cfg.Logger)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(cfg.Logger))
	promMW := echoprometheus.MiddlewareConfig{Subsystem: "sendit"}
	promHandler := echoprometheus.HandlerConfig{}
	if cfg.Metrics != nil {
		promMW.Registerer = cfg.Metrics
		promHandler.Gatherer = cfg.Metrics
	}
	e.Use(echoprometheus.NewMiddlewareWithConfig(promMW))

	// --- Health, metrics and docs (no auth required) ---
	health := handler.NewHealthHandler(cfg.HealthChecks)
	e.GET("/health", health.Liveness)        // liveness  – is the process alive?
	e.GET("/health/ready", health.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(promHandler))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	parcels := handler.NewParcelHandler(svc.Parcels)
	tracking := handler.NewTrackingHandler(svc.Parcels, cfg.Currency)
	admin := handler.NewAdminHandler(svc.Parcels, svc.Dispatch, svc.Payments)
	couriers := handler.NewCourierHandler(svc.Couriers)
	users := handler.NewUserHandler(svc.Users, svc.Inbox)

	v1 := e.Group("/v1")

	// --- Public ---
	v1.GET("/track/:tracking_number", tracking.Track)
	v1.POST("/quotes", tracking.Quote)

	auth := v1.Group("", middleware.Auth(cfg.JWTSecret))

	// --- Parcels (ownership enforced by the service) ---
	auth.POST("/parcels", parcels.Create, middleware.RBAC(domain.RoleCustomer, domain.RoleAdmin))
	auth.GET("/parcels", parcels.List)
	auth.GET("/parcels/:id", parcels.Get)
	auth.GET("/parcels/:id/history", parcels.History)
	auth.GET("/parcels/:id/attempts", parcels.Attempts)
	auth.POST("/parcels/:id/submit", parcels.Submit)
	auth.POST("/parcels/:id/cancel", parcels.Cancel)
	auth.DELETE("/parcels/:id", parcels.Delete)

	// --- Admin ---
	adm := auth.Group("/admin", middleware.RBAC(domain.RoleAdmin))
	adm.PATCH("/parcels/:id/status", admin.UpdateStatus)
	adm.POST("/parcels/:id/assignments", admin.AssignCourier)
	adm.DELETE("/assignments/:id", admin.CancelAssignment)
	auth.POST("/payments/confirm", admin.ConfirmPayment, middleware.RBAC(domain.RoleAdmin))

	// --- Courier ---
	crr := auth.Group("/courier", middleware.RBAC(domain.RoleCourier))
	crr.GET("/deliveries", couriers.Deliveries)
	crr.PATCH("/deliveries/:parcel_id/status", couriers.UpdateStatus)
	crr.GET("/earnings", couriers.Earnings)

	// --- Users ---
	auth.GET("/users/me", users.Me)
	auth.PATCH("/users/me/preferences", users.UpdatePreferences)
	auth.GET("/notifications", users.Notifications)
	auth.POST("/notifications/:id/read", users.MarkRead)

	return e
}

// requestLogger writes one zerolog line per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			switch {
			case v.Status >= 500:
				ev = log.Error().Err(v.Error)
			case v.Error != nil:
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
