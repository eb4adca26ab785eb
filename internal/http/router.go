package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ambrosia-fish/armatillo-api/internal/config"
	"github.com/ambrosia-fish/armatillo-api/internal/http/handler"
	httpmiddleware "github.com/ambrosia-fish/armatillo-api/internal/http/middleware"
	"github.com/ambrosia-fish/armatillo-api/internal/middleware"
	"github.com/ambrosia-fish/armatillo-api/internal/service"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(
	cfg config.Config,
	authService *service.AuthService,
	authHandler *handler.AuthHandler,
	oauthHandler *handler.OAuthHandler,
	adminHandler *handler.AdminHandler,
	trackingHandler *handler.TrackingHandler,
	rateLimiter *middleware.RateLimiter,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	requireAuth := httpmiddleware.RequireAuth(authService)

	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authHandler.Logout)
		auth.GET("/me", requireAuth, authHandler.Me)
		auth.POST("/report-incident", authHandler.ReportIncident)

		auth.GET("/google-mobile", oauthHandler.Start)
		auth.GET("/google-callback", oauthHandler.Callback)
		auth.POST("/token", oauthHandler.Exchange)
	}

	admin := r.Group("/api/admin", requireAuth, httpmiddleware.RequireAdmin())
	{
		admin.GET("/access-requests", adminHandler.ListAccessRequests)
		admin.POST("/access-requests", adminHandler.CreateAccessRequest)
		admin.POST("/access-requests/:id/approve", adminHandler.ApproveAccessRequest)
		admin.POST("/access-requests/:id/reject", adminHandler.RejectAccessRequest)
	}

	instances := r.Group("/api/instances", requireAuth)
	{
		instances.POST("", trackingHandler.CreateInstance)
		instances.GET("", trackingHandler.ListInstances)
		instances.GET("/:id", trackingHandler.GetInstance)
		instances.PUT("/:id", trackingHandler.UpdateInstance)
		instances.DELETE("/:id", trackingHandler.DeleteInstance)
	}

	strategies := r.Group("/api/strategies", requireAuth)
	{
		strategies.POST("", trackingHandler.CreateStrategy)
		strategies.GET("", trackingHandler.ListStrategies)
		strategies.GET("/:id", trackingHandler.GetStrategy)
		strategies.PUT("/:id", trackingHandler.UpdateStrategy)
		strategies.DELETE("/:id", trackingHandler.DeleteStrategy)
	}

	return r
}
