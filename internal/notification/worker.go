package notification

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"power-outage-monitor/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender sends notifications with the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Kind tells subscribers what happened to an event.
type Kind string

const (
	KindCreated   Kind = "created"
	KindCancelled Kind = "cancelled"
)

// Job is one event to announce to the subscribers of a group.
type Job struct {
	GroupCode string
	Kind      Kind
	EventID   string
}

// JobFor builds the job announcing p.
func JobFor(p model.OutagePeriod, kind Kind) Job {
	return Job{GroupCode: p.GroupCode, Kind: kind, EventID: p.EventID}
}

// Message is the push payload for j.
func (j Job) Message() string {
	if j.Kind == KindCancelled {
		return fmt.Sprintf("Подію скасовано: %s", j.EventID)
	}
	return fmt.Sprintf("Нова подія графіку: %s", j.EventID)
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Job
	stopped chan struct{}
	stop    sync.Once
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	log     zerolog.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, log zerolog.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size),
		stopped: make(chan struct{}),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     log,
	}
}

// Start launches the worker goroutines. The pool stops accepting jobs once
// ctx is done.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
	go func() {
		<-ctx.Done()
		wp.stop.Do(func() { close(wp.stopped) })
	}()
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug().Int("worker", id).Msg("push worker started")
	for {
		select {
		case job := <-wp.jobs:
			wp.sendNotificationsForGroup(ctx, job)
		case <-ctx.Done():
			wp.log.Debug().Int("worker", id).Msg("push worker shutting down")
			return
		}
	}
}

// Dispatch queues a job, blocking while every worker is busy and the
// queue is full. Jobs dispatched after the pool stopped are dropped.
func (wp *WorkerPool) Dispatch(job Job) {
	select {
	case <-wp.stopped:
		wp.drop(job)
		return
	default:
	}
	select {
	case wp.jobs <- job:
	case <-wp.stopped:
		wp.drop(job)
	}
}

func (wp *WorkerPool) drop(job Job) {
	wp.log.Warn().
		Str("group", job.GroupCode).
		Str("event_id", job.EventID).
		Msg("push pool stopped, notification dropped")
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}

func (wp *WorkerPool) sendNotificationsForGroup(ctx context.Context, job Job) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_groups sg ON sg.endpoint = push_subscriptions.endpoint").
		Where("sg.group_code = ?", job.GroupCode).
		Find(&subscriptions).Error
	if err != nil {
		wp.log.Error().Err(err).Str("group", job.GroupCode).Msg("fetch subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	wp.log.Info().
		Str("group", job.GroupCode).
		Str("kind", string(job.Kind)).
		Int("subscribers", len(subscriptions)).
		Msg("sending push notifications")

	payload := []byte(job.Message())
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("send notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		wp.log.Info().Str("endpoint", sub.Endpoint).Msg("subscription expired, deleting")
		if err := DeleteSubscription(ctx, wp.db, sub.Endpoint); err != nil {
			wp.log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("delete expired subscription")
		}
	}
}

// DeleteSubscription removes a subscription and the groups it follows.
func DeleteSubscription(ctx context.Context, db *gorm.DB, endpoint string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("endpoint = ?", endpoint).Delete(&model.SubscriptionGroup{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.PushSubscription{Endpoint: endpoint}).Error
	})
}
