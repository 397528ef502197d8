package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"power-outage-monitor/config"
	"power-outage-monitor/internal/calendar"
	"power-outage-monitor/internal/model"
	"power-outage-monitor/internal/period"
	"power-outage-monitor/internal/store"
)

// GetHealth reports whether the database answers.
func (h *Handler) GetHealth(c *gin.Context) {
	sqlDB, err := h.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		h.log.Warn().Err(err).Msg("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetStats handles GET /api/stats.
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context(), h.now())
	if err != nil {
		h.log.Error().Err(err).Msg("load stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// periodResponse is the API view of a period.
type periodResponse struct {
	RecordID   string    `json:"record_id"`
	Date       string    `json:"date"`
	Group      string    `json:"group"`
	GroupCode  string    `json:"group_code"`
	Status     string    `json:"status"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	LastUpdate time.Time `json:"last_update"`
	InsertedAt time.Time `json:"inserted_at"`
	EventID    string    `json:"event_id"`
	EventUID   string    `json:"event_uid"`
	State      string    `json:"state"`
	Sent       bool      `json:"sent"`
}

func toResponse(p model.OutagePeriod) periodResponse {
	return periodResponse{
		RecordID:   p.RecordID,
		Date:       p.Date,
		Group:      p.GroupName,
		GroupCode:  p.GroupCode,
		Status:     string(p.Status),
		From:       p.WindowFrom,
		To:         p.WindowTo,
		LastUpdate: p.LastUpdate,
		InsertedAt: p.InsertedAt,
		EventID:    p.EventID,
		EventUID:   p.EventUID,
		State:      string(p.State),
		Sent:       p.Sent,
	}
}

// parseDate accepts ISO dates and the DD.MM.YYYY form the utility prints.
func parseDate(s string) (string, bool) {
	if t, err := time.Parse(period.DateLayout, s); err == nil {
		return period.FormatDate(t), true
	}
	if t, err := time.Parse(period.DisplayDateLayout, s); err == nil {
		return period.FormatDate(t), true
	}
	return "", false
}

// GetPeriods handles GET /api/periods?date=. The date defaults to today.
func (h *Handler) GetPeriods(c *gin.Context) {
	date := period.Today(h.now(), h.loc)
	if raw := c.Query("date"); raw != "" {
		var ok bool
		if date, ok = parseDate(raw); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD or DD.MM.YYYY"})
			return
		}
	}

	periods, err := h.store.PeriodsByDate(c.Request.Context(), date)
	if err != nil {
		h.log.Error().Err(err).Str("date", date).Msg("load periods")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load periods"})
		return
	}

	resp := make([]periodResponse, 0, len(periods))
	for _, p := range periods {
		resp = append(resp, toResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "periods": resp})
}

// GetCalendar handles GET /api/calendar.ics?groups=1.1,2.1: a live feed of
// the events emitted for today onwards.
func (h *Handler) GetCalendar(c *gin.Context) {
	now := h.now()
	periods, err := h.store.FindForEmission(c.Request.Context(), store.EmissionQuery{
		State:      model.StateGenerated,
		Sent:       true,
		MinDate:    period.Today(now, h.loc),
		GroupCodes: config.ParseGroups(c.Query("groups")),
	})
	if err != nil {
		h.log.Error().Err(err).Msg("load calendar feed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load events"})
		return
	}

	content, err := calendar.Publish(h.calendarName, periods, h.loc, now)
	if err != nil {
		h.log.Error().Err(err).Msg("render calendar feed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render calendar"})
		return
	}
	c.Header("Content-Disposition", `inline; filename="`+strings.ReplaceAll(h.calendarName, `"`, "")+`.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(content))
}
