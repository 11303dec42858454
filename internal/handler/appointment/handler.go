package appointment

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/appointment-engine/internal/middleware"
	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/service/appointment"
	"github.com/jwalitptl/appointment-engine/internal/service/booking"
	"github.com/jwalitptl/appointment-engine/pkg/errors"
	"github.com/jwalitptl/appointment-engine/pkg/httputil"
)

type Handler struct {
	service *appointment.Service
}

func NewHandler(service *appointment.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/:id", h.GetAppointment)
		appointments.PATCH("/:id", h.UpdateAppointment)
		appointments.DELETE("/:id", middleware.RequireRoles(model.RoleAdmin), h.DeleteAppointment)
		appointments.PATCH("/:id/status", h.UpdateStatus)
		appointments.GET("/:id/transitions", h.ListTransitions)

		appointments.GET("/patient/:id", h.ListPatientAppointments)
		appointments.GET("/doctor/:id", h.ListDoctorAppointments)
		appointments.GET("/doctor/:id/available-slots", h.GetAvailableSlots)
		appointments.GET("/doctor/:id/summary", h.GetSummary)
	}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	created, err := h.service.Book(c.Request.Context(), actor, booking.Request{
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		Date:            req.Date,
		Time:            req.Time,
		DurationMinutes: req.DurationMinutes,
		Reason:          optional(req.Reason),
		Symptoms:        optional(req.Symptoms),
		Notes:           optional(req.Notes),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	httputil.RespondWithStatus(c, http.StatusCreated, created)
}

func (h *Handler) ListAppointments(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	list, err := h.service.ListForActor(c.Request.Context(), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, list)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "appointment")
	if !ok {
		return
	}

	a, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, a)
}

func (h *Handler) UpdateAppointment(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "appointment")
	if !ok {
		return
	}

	var req model.UpdateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	updated, err := h.service.UpdateDetails(c.Request.Context(), actor, id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, updated)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "appointment")
	if !ok {
		return
	}

	var req model.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	updated, err := h.service.Transition(c.Request.Context(), actor, id, req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, updated)
}

func (h *Handler) ListTransitions(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "appointment")
	if !ok {
		return
	}

	targets, err := h.service.AllowedTransitions(c.Request.Context(), actor, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"allowed": targets})
}

func (h *Handler) DeleteAppointment(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, "appointment")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), actor, id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListPatientAppointments returns a flat list, or the portal grouping with
// ?view=grouped.
func (h *Handler) ListPatientAppointments(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	patientID, ok := h.id(c, "patient")
	if !ok {
		return
	}

	if c.Query("view") == "grouped" {
		view, err := h.service.PatientOverview(c.Request.Context(), actor, patientID)
		if err != nil {
			h.fail(c, err)
			return
		}
		httputil.RespondWithSuccess(c, view)
		return
	}

	list, err := h.service.ListByPatient(c.Request.Context(), actor, patientID)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, list)
}

func (h *Handler) ListDoctorAppointments(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	doctorID, ok := h.id(c, "doctor")
	if !ok {
		return
	}

	list, err := h.service.ListByDoctor(c.Request.Context(), actor, doctorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, list)
}

func (h *Handler) GetAvailableSlots(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	doctorID, ok := h.id(c, "doctor")
	if !ok {
		return
	}
	date := c.Query("date")
	if date == "" {
		h.fail(c, errors.BadRequest("date query parameter is required", nil))
		return
	}

	availability, err := h.service.ResolveSlots(c.Request.Context(), actor, doctorID, date)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, availability)
}

func (h *Handler) GetSummary(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	doctorID, ok := h.id(c, "doctor")
	if !ok {
		return
	}

	summary, err := h.service.Summary(c.Request.Context(), actor, doctorID, c.Query("date"))
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, summary)
}

func (h *Handler) actor(c *gin.Context) (model.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		httputil.RespondWithError(c, errors.Unauthorized(nil))
	}
	return actor, ok
}

func (h *Handler) id(c *gin.Context, resource string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(c, errors.BadRequest("invalid "+resource+" ID", err))
		return 0, false
	}
	return id, true
}

func (h *Handler) bindError(c *gin.Context, err error) {
	appErr, details := middleware.BindError(err)
	_ = c.Error(appErr)
	httputil.RespondWithDetails(c, appErr, details)
}

func (h *Handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	httputil.RespondWithError(c, err)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
