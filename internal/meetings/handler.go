package meetings

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-erp/meeting-scheduler/internal/middleware"
	"github.com/aura-erp/meeting-scheduler/internal/models"
	"github.com/aura-erp/meeting-scheduler/internal/store"
	"github.com/aura-erp/meeting-scheduler/pkg/response"
)

// CreateRequest is the body for POST /meetings.
type CreateRequest struct {
	Title            string   `json:"title"`
	Purpose          string   `json:"purpose"`
	DurationMinutes  int      `json:"duration_minutes"`
	ResponseDeadline string   `json:"response_deadline"`
	ParticipantIDs   []string `json:"participant_ids"`
	SlotStartTimes   []string `json:"slot_start_times"`
}

// AvailabilityRequest is the body for PUT /meetings/:id/availability.
type AvailabilityRequest struct {
	Responses []struct {
		TimeSlotID string `json:"time_slot_id"`
		Status     string `json:"status"`
	} `json:"responses"`
}

// FinalizeRequest is the body for POST /meetings/:id/finalize.
type FinalizeRequest struct {
	TimeSlotID  string  `json:"time_slot_id"`
	Venue       *string `json:"venue"`
	MeetingLink *string `json:"meeting_link"`
}

// InviteRequest is the body for POST /meetings/:id/participants.
type InviteRequest struct {
	ParticipantIDs []string `json:"participant_ids"`
}

// Handler handles meeting HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a meeting handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the meeting routes on rg. createMW runs before POST /meetings only.
func (h *Handler) Register(rg gin.IRoutes, createMW ...gin.HandlerFunc) {
	rg.POST("/meetings", append(createMW, h.Create)...)
	rg.GET("/meetings", h.List)
	rg.GET("/meetings/:id", h.Get)
	rg.PUT("/meetings/:id/availability", h.SubmitAvailability)
	rg.POST("/meetings/:id/finalize", h.Finalize)
	rg.POST("/meetings/:id/cancel", h.Cancel)
	rg.POST("/meetings/:id/participants", h.Invite)
	rg.GET("/meetings/:id/calendar.ics", h.Calendar)
}

// Create handles POST /meetings.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	in := CreateMeetingInput{
		Title:           req.Title,
		Purpose:         req.Purpose,
		DurationMinutes: req.DurationMinutes,
	}
	v := &ValidationError{}
	if req.ResponseDeadline != "" {
		t, err := parseTime(req.ResponseDeadline)
		if err != nil {
			v.add("response_deadline", "must be an RFC3339 timestamp")
		}
		in.ResponseDeadline = t
	}
	for _, s := range req.ParticipantIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			v.add("participant_ids", "must contain valid ids")
			continue
		}
		in.ParticipantIDs = append(in.ParticipantIDs, id)
	}
	for _, s := range req.SlotStartTimes {
		t, err := parseTime(s)
		if err != nil {
			v.add("slot_start_times", "must contain RFC3339 timestamps")
			continue
		}
		in.SlotStartTimes = append(in.SlotStartTimes, t)
	}
	if v.HasErrors() {
		h.fail(c, v)
		return
	}

	m, err := h.svc.CreateMeeting(c.Request.Context(), callerID(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, m)
}

// List handles GET /meetings?view=upcoming|archived.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.ListMeetings(c.Request.Context(), callerID(c), View(c.Query("view")))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /meetings/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := meetingID(c)
	if !ok {
		return
	}
	detail, err := h.svc.GetMeetingDetail(c.Request.Context(), id, callerID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, detail)
}

// SubmitAvailability handles PUT /meetings/:id/availability.
func (h *Handler) SubmitAvailability(c *gin.Context) {
	id, ok := meetingID(c)
	if !ok {
		return
	}
	var req AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	responses := make([]AvailabilityResponse, 0, len(req.Responses))
	for _, r := range req.Responses {
		// Unparseable ids become uuid.Nil, which the service reports per index.
		slotID, _ := uuid.Parse(r.TimeSlotID)
		responses = append(responses, AvailabilityResponse{
			TimeSlotID: slotID,
			Status:     models.AvailabilityStatus(r.Status),
		})
	}
	if err := h.svc.SubmitAvailability(c.Request.Context(), id, callerID(c), responses); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

// Finalize handles POST /meetings/:id/finalize.
func (h *Handler) Finalize(c *gin.Context) {
	id, ok := meetingID(c)
	if !ok {
		return
	}
	var req FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	slotID, err := uuid.Parse(req.TimeSlotID)
	if err != nil {
		h.fail(c, validationError("time_slot_id", "must be a valid id"))
		return
	}
	m, err := h.svc.FinalizeMeeting(c.Request.Context(), id, callerID(c), FinalizeInput{
		TimeSlotID:  slotID,
		Venue:       req.Venue,
		MeetingLink: req.MeetingLink,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, m)
}

// Cancel handles POST /meetings/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := meetingID(c)
	if !ok {
		return
	}
	m, err := h.svc.CancelMeeting(c.Request.Context(), id, callerID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, m)
}

// Invite handles POST /meetings/:id/participants.
func (h *Handler) Invite(c *gin.Context) {
	id, ok := meetingID(c)
	if !ok {
		return
	}
	var req InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ids := make([]uuid.UUID, 0, len(req.ParticipantIDs))
	for _, s := range req.ParticipantIDs {
		uid, err := uuid.Parse(s)
		if err != nil {
			h.fail(c, validationError("participant_ids", "must contain valid ids"))
			return
		}
		ids = append(ids, uid)
	}
	added, err := h.svc.InviteParticipants(c.Request.Context(), id, callerID(c), ids)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"added": added})
}

// Calendar handles GET /meetings/:id/calendar.ics.
func (h *Handler) Calendar(c *gin.Context) {
	id, ok := meetingID(c)
	if !ok {
		return
	}
	ics, err := h.svc.CalendarInvite(c.Request.Context(), id, callerID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="meeting-`+id.String()+`.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", ics)
}

// fail maps service errors onto the response envelope.
func (h *Handler) fail(c *gin.Context, err error) {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		response.ValidationFailed(c, "validation failed", vErr.FieldErrors)
	case errors.Is(err, ErrForbidden):
		response.Forbidden(c, "not allowed for this meeting")
	case errors.Is(err, ErrNotFound), errors.Is(err, store.ErrNotFound):
		response.NotFound(c, "meeting or time slot not found")
	case errors.Is(err, ErrConflict):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error("meeting request failed",
			zap.String("path", c.FullPath()),
			zap.String("error_kind", ErrorKind(err)),
			zap.Error(err))
		response.Internal(c, "internal error")
	}
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func callerID(c *gin.Context) uuid.UUID {
	return c.MustGet(middleware.ContextUserID).(uuid.UUID)
}

func meetingID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return uuid.Nil, false
	}
	return id, true
}
