package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"power-outage-monitor/internal/mw"
	"power-outage-monitor/internal/store"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Webpush      *webpush.Options // nil disables the push endpoints' key
	Location     *time.Location
	CalendarName string
	RateLimit    rate.Limit
	RateBurst    int
	CacheTTL     time.Duration
	Log          zerolog.Logger
}

// NewRouter creates and configures the read API.
func NewRouter(s store.Store, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.AccessLog(opts.Log, time.Second))

	handler := NewHandler(s, opts.Webpush, opts.Location, opts.CalendarName, opts.Log)

	cacheStore := cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	caching := mw.Cache(cacheStore, opts.CacheTTL)

	r.GET("/health", handler.GetHealth)

	api := r.Group("/api")
	api.Use(mw.RateLimiter(opts.RateLimit, opts.RateBurst))
	{
		api.GET("/stats", caching, handler.GetStats)
		api.GET("/periods", caching, handler.GetPeriods)
		api.GET("/calendar.ics", caching, handler.GetCalendar)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
