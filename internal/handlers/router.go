package handlers

import (
	"log"
	"time"

	"sessionreminders/internal/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	JWTSecret      string
	AllowedOrigins []string
	TrustedProxies []string
}

// NewRouter wires the reminder API. /events accepts admin or service tokens,
// /admin only admin tokens.
func NewRouter(cfg RouterConfig, health Pinger, h *ReminderHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Printf("Warning: invalid trusted proxies %v: %v", cfg.TrustedProxies, err)
	}

	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/health", HealthHandler(health))

	events := router.Group("/events")
	events.Use(auth.RequireRole(cfg.JWTSecret, auth.RoleAdmin, auth.RoleService))
	{
		events.POST("/enrollments", h.EnrollmentCreated)
		events.POST("/sessions/:session_id/reschedule", h.SessionRescheduled)
	}

	admin := router.Group("/admin/reminders")
	admin.Use(auth.RequireRole(cfg.JWTSecret, auth.RoleAdmin))
	{
		admin.POST("/schedule", h.ScheduleManual)
		admin.POST("/test", h.SendTest)
		admin.GET("/stats", h.Stats)
		admin.GET("/configs", h.ListConfigs)
		admin.PATCH("/configs/:reminder_type", h.UpdateConfig)
	}

	return router
}
