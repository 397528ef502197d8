package monitor

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// cronLogger routes cron's own messages to zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}

// Run executes a cycle immediately and then on every tick of schedule until
// ctx is done. A tick that fires while a cycle is still running is skipped.
// Cycle failures are logged and never stop the loop.
func (s *Service) Run(ctx context.Context, schedule string) error {
	logger := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLocation(s.opts.Location),
		cron.WithLogger(logger),
	)
	// the first run and the ticks share one chain so they never overlap
	job := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(func() {
		s.runLogged(ctx)
	}))
	if _, err := c.AddJob(schedule, job); err != nil {
		return fmt.Errorf("parse schedule %q: %w", schedule, err)
	}

	s.log.Info().Str("schedule", schedule).Msg("continuous monitoring started")
	job.Run()
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info().Msg("continuous monitoring stopped")
	return nil
}

func (s *Service) runLogged(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	rep := s.RunOnce(ctx)
	ev := s.log.Info()
	if rep.Status == StatusError {
		ev = s.log.Error().Err(rep.Err)
	}
	ev.Str("status", string(rep.Status)).Msg("cycle status")
}
