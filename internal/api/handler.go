package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"

	"power-outage-monitor/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store        store.Store
	webpush      *webpush.Options
	loc          *time.Location
	calendarName string
	log          zerolog.Logger
	now          func() time.Time
}

// NewHandler creates a new API handler. Dates are resolved in loc.
func NewHandler(s store.Store, webpushOptions *webpush.Options, loc *time.Location, calendarName string, log zerolog.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		store:        s,
		webpush:      webpushOptions,
		loc:          loc,
		calendarName: calendarName,
		log:          log,
		now:          time.Now,
	}
}
