package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/middleware"
	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/academic-records-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/academic-records-api/pkg/middleware/requestid"
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	APIPrefix      string
	AllowedOrigins []string
	TrustedProxies []string
}

// Handlers groups every endpoint set. Export may be nil when exports are disabled.
type Handlers struct {
	Scheme       *SchemeHandler
	Score        *ScoreHandler
	Enrollment   *EnrollmentHandler
	Ledger       *LedgerHandler
	Export       *ExportHandler
	Notification *NotificationHandler
	Audit        *AuditHandler
	Archive      *ArchiveHandler
	Metrics      *MetricsHandler
}

// NewRouter builds the gin engine with the global middleware chain and every route.
func NewRouter(cfg RouterConfig, auth middleware.TokenValidator, observer middleware.HTTPObserver, h Handlers, logr *zap.Logger) *gin.Engine {
	if logr == nil {
		logr = zap.NewNop()
	}
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logr.Warn("invalid trusted proxies, trusting none", zap.Strings("proxies", cfg.TrustedProxies), zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.AllowedOrigins))
	r.Use(middleware.Metrics(observer))

	if h.Metrics != nil {
		r.GET("/health", h.Metrics.Health)
		r.GET("/ready", h.Metrics.Ready)
		r.GET("/metrics", h.Metrics.Prometheus)
	}

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix, middleware.JWT(auth), middleware.Actor())
	Register(api, h)
	return r
}

// Register mounts the authenticated routes on group.
func Register(api *gin.RouterGroup, h Handlers) {
	admin := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)
	anyone := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher, models.RoleStudent)

	categories := api.Group("/categories")
	categories.GET("", anyone, h.Scheme.ListCategories)
	categories.POST("", admin, h.Scheme.CreateCategory)
	categories.PUT("/:id", admin, h.Scheme.RenameCategory)

	offerings := api.Group("/offerings/:id")
	offerings.GET("/scheme", anyone, h.Scheme.GetScheme)
	offerings.PUT("/scheme/:categoryId", staff, h.Scheme.SetWeight)
	offerings.DELETE("/scheme/:categoryId", staff, h.Scheme.RemoveWeight)
	offerings.GET("/enrollments", staff, h.Enrollment.ListByOffering)
	offerings.GET("/roster", staff, h.Ledger.Roster)
	offerings.GET("/stats", staff, h.Ledger.Stats)
	if h.Export != nil {
		offerings.GET("/roster/export", staff, h.Export.Roster)
	}

	scores := api.Group("/scores", staff)
	scores.POST("", h.Score.Record)
	scores.POST("/validate", h.Score.Validate)
	scores.DELETE("/:id", h.Score.Remove)

	enrollments := api.Group("/enrollments")
	enrollments.POST("", admin, h.Enrollment.Create)
	enrollments.GET("/:id", staff, h.Enrollment.Get)
	enrollments.DELETE("/:id", admin, h.Enrollment.Delete)
	enrollments.GET("/:id/scores", staff, h.Score.Current)
	enrollments.GET("/:id/history", staff, h.Score.History)
	enrollments.GET("/:id/summary", anyone, h.Ledger.Summary)

	api.GET("/students/:id/transcript", middleware.RBAC(string(models.RoleAdmin), string(models.RoleTeacher), middleware.Self), h.Ledger.Transcript)
	api.GET("/reports/at-risk", staff, h.Ledger.AtRisk)

	notifications := api.Group("/notifications", anyone)
	notifications.GET("", h.Notification.List)
	notifications.GET("/unread", h.Notification.Unread)
	notifications.POST("/read-all", h.Notification.MarkAllRead)
	notifications.POST("/:id/read", h.Notification.MarkRead)

	api.GET("/audit", admin, h.Audit.Trail)
	api.GET("/offerings/:id/archives", admin, h.Archive.List)
	api.GET("/archives/:id", admin, h.Archive.Get)
	if h.Metrics != nil {
		api.GET("/system/metrics", admin, h.Metrics.Snapshot)
	}
}
