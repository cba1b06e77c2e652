package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"sessionreminders/internal/auth"
	"sessionreminders/internal/models"
	"sessionreminders/internal/services"

	"github.com/gin-gonic/gin"
)

// ConfigAdmin is the configuration store surface the admin routes need
type ConfigAdmin interface {
	ListConfigs(ctx context.Context) ([]models.ReminderConfiguration, error)
	UpdateConfig(ctx context.Context, reminderType string, patch models.UpdateReminderConfigRequest) (*models.ReminderConfiguration, error)
}

// EnrollmentCounter counts active enrollments of a session
type EnrollmentCounter interface {
	CountEnrollments(ctx context.Context, sessionID string) (int64, error)
}

type ReminderHandler struct {
	orchestrator *services.Orchestrator
	manual       *services.ManualTriggerHandler
	stats        *services.StatsService
	configs      ConfigAdmin
	enrollments  EnrollmentCounter
}

func NewReminderHandler(orchestrator *services.Orchestrator, manual *services.ManualTriggerHandler, stats *services.StatsService, configs ConfigAdmin, enrollments EnrollmentCounter) *ReminderHandler {
	return &ReminderHandler{
		orchestrator: orchestrator,
		manual:       manual,
		stats:        stats,
		configs:      configs,
		enrollments:  enrollments,
	}
}

// EnrollmentCreated schedules the reminders of a new enrollment
func (h *ReminderHandler) EnrollmentCreated(c *gin.Context) {
	var request models.EnrollmentEventRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.orchestrator.ScheduleForEnrollment(c.Request.Context(), services.EnrollmentScheduleInput{
		SessionID:        request.SessionID,
		UserID:           request.UserID,
		EnrollmentID:     request.EnrollmentID,
		SessionStartTime: request.SessionStartTime,
	})
	if err != nil {
		handleError(c, "Failed to schedule reminders", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SessionRescheduled re-registers reminders after a start time change
func (h *ReminderHandler) SessionRescheduled(c *gin.Context) {
	result, err := h.orchestrator.RescheduleSession(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		handleError(c, "Failed to reschedule reminders", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ScheduleManual queues an immediate reminder run for every enrolled user
func (h *ReminderHandler) ScheduleManual(c *gin.Context) {
	var request models.ScheduleManualRemindersRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()

	count, err := h.enrollments.CountEnrollments(ctx, request.SessionID)
	if err != nil {
		handleError(c, "Failed to count enrollments", err)
		return
	}
	if count == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no enrollments"})
		return
	}

	adminEmail := c.GetString(auth.ContextEmail)
	id, err := h.orchestrator.ScheduleForManualTrigger(ctx, request.SessionID, request.ReminderTypes, adminEmail)
	if err != nil {
		handleError(c, "Failed to schedule reminders", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"scheduled":        len(request.ReminderTypes),
		"enrollment_count": count,
		"registration_id":  id,
	})
}

// SendTest mails a sample of each reminder type to the given admin address
func (h *ReminderHandler) SendTest(c *gin.Context) {
	var request models.SendTestReminderRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.manual.SendTest(c.Request.Context(), services.TestReminderInput{
		ReminderTypes: request.ReminderTypes,
		AdminEmail:    request.AdminEmail,
		AdminName:     request.AdminName,
	})
	if err != nil {
		handleError(c, "Failed to send test reminders", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Stats returns delivery statistics; from and to accept RFC 3339 or YYYY-MM-DD
func (h *ReminderHandler) Stats(c *gin.Context) {
	filter := services.StatsFilter{ReminderType: c.Query("type")}

	var err error
	if filter.From, err = parseTimeParam(c.Query("from"), false); err != nil {
		badRequest(c, err)
		return
	}
	if filter.To, err = parseTimeParam(c.Query("to"), true); err != nil {
		badRequest(c, err)
		return
	}

	stats, err := h.stats.Stats(c.Request.Context(), filter)
	if err != nil {
		handleError(c, "Failed to load reminder stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *ReminderHandler) ListConfigs(c *gin.Context) {
	cfgs, err := h.configs.ListConfigs(c.Request.Context())
	if err != nil {
		handleError(c, "Failed to load reminder configurations", err)
		return
	}
	c.JSON(http.StatusOK, cfgs)
}

func (h *ReminderHandler) UpdateConfig(c *gin.Context) {
	var request models.UpdateReminderConfigRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}
	for _, tmpl := range []*string{request.SubjectTemplate, request.BodyTemplate} {
		if tmpl == nil {
			continue
		}
		if err := services.ValidateTemplate(*tmpl); err != nil {
			badRequest(c, err)
			return
		}
	}

	reminderType := c.Param("reminder_type")
	cfg, err := h.configs.UpdateConfig(c.Request.Context(), reminderType, request)
	if err != nil {
		handleError(c, "Failed to update reminder configuration", err)
		return
	}
	log.Printf("Reminder configuration %s updated by %s", reminderType, c.GetString(auth.ContextEmail))
	c.JSON(http.StatusOK, cfg)
}

// parseTimeParam reads an optional time; a bare date used as an upper bound
// covers the whole day
func parseTimeParam(v string, endOfDay bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q, expected RFC 3339 or YYYY-MM-DD", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
