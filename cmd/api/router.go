package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/civic-report-api/api/swagger"
	"github.com/noah-isme/civic-report-api/internal/handler"
	"github.com/noah-isme/civic-report-api/internal/middleware"
	"github.com/noah-isme/civic-report-api/internal/models"
	"github.com/noah-isme/civic-report-api/internal/service"
	"github.com/noah-isme/civic-report-api/pkg/config"
	"github.com/noah-isme/civic-report-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/civic-report-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/civic-report-api/pkg/middleware/requestid"
	"github.com/noah-isme/civic-report-api/pkg/storage"
)

type routerDeps struct {
	tokens  middleware.TokenValidator
	metrics *service.MetricsService
	reports *handler.ReportHandler
	exports *handler.ExportHandler
	health  *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	if cfg.Uploads.MaxMultipartMemory > 0 {
		r.MaxMultipartMemory = cfg.Uploads.MaxMultipartMemory
	}
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics, "/metrics"))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", deps.health.Health)
	r.GET("/ready", deps.health.Ready)
	r.GET("/metrics", deps.health.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if cfg.Uploads.Driver == config.UploadDriverLocal {
		r.Static(storage.MediaPathPrefix, cfg.Uploads.Dir)
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/export/:token", deps.exports.Download)

	staffAdmins := middleware.RequireRoles(models.RoleMunicipalityAdmin, models.RoleSysAdmin)
	citizens := middleware.RequireRoles(models.RoleCitizen)

	reports := api.Group("/reports", middleware.JWT(deps.tokens))
	reports.POST("", citizens, deps.reports.Create)
	reports.GET("", staffAdmins, deps.reports.List)
	reports.GET("/mine", citizens, deps.reports.Mine)
	reports.GET("/assigned", middleware.RequireRoles(models.RoleFieldStaff, models.RoleMunicipalityAdmin), deps.reports.Assigned)
	reports.GET("/dashboard/counts", staffAdmins, deps.reports.Counts)
	reports.POST("/exports", staffAdmins, deps.exports.Create)
	reports.GET("/exports/:id", staffAdmins, deps.exports.Status)
	reports.GET("/:id", deps.reports.Get)
	reports.GET("/:id/activity", deps.reports.Activity)
	reports.PUT("/:id", citizens, deps.reports.Update)
	reports.DELETE("/:id", citizens, deps.reports.Delete)
	reports.PUT("/:id/status", middleware.RequireRoles(models.RoleFieldStaff, models.RoleMunicipalityAdmin, models.RoleSysAdmin), deps.reports.UpdateStatus)
	reports.PUT("/:id/assign", staffAdmins, deps.reports.Assign)

	return r
}
