package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"power-outage-monitor/config"
	"power-outage-monitor/internal/api"
	"power-outage-monitor/internal/calendar"
	"power-outage-monitor/internal/db"
	"power-outage-monitor/internal/logger"
	"power-outage-monitor/internal/monitor"
	"power-outage-monitor/internal/notification"
	"power-outage-monitor/internal/scraper"
	"power-outage-monitor/internal/store"
)

type flags struct {
	configPath    string
	once          bool
	continuous    bool
	groups        string
	groupsFile    string
	dbPath        string
	retentionDays int
	exportCSV     string
	stats         bool
	queryDate     string
	cleanup       bool
	serve         bool
}

func parseFlags(args []string) (flags, error) {
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "./config/config.yaml"
	}

	var f flags
	fs := flag.NewFlagSet("outaged", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", defaultConfig, "path to the YAML config file")
	fs.BoolVar(&f.once, "once", false, "run a single cycle and exit (default)")
	fs.BoolVar(&f.continuous, "continuous", false, "poll on the configured schedule until interrupted")
	fs.StringVar(&f.groups, "groups", "", "comma-separated group codes to process, e.g. 1.1,2.1")
	fs.StringVar(&f.groupsFile, "groups-file", "", `JSON file holding {"group": [...]}`)
	fs.StringVar(&f.dbPath, "db", "", "database location, overrides database.dsn")
	fs.IntVar(&f.retentionDays, "retention-days", 0, "delete periods older than this many days")
	fs.StringVar(&f.exportCSV, "export-csv", "", "write every period to this CSV file and exit")
	fs.BoolVar(&f.stats, "stats", false, "print database statistics and exit")
	fs.StringVar(&f.queryDate, "query-date", "", "list the periods of a date (YYYY-MM-DD) and exit")
	fs.BoolVar(&f.cleanup, "cleanup", false, "purge expired periods and exit")
	fs.BoolVar(&f.serve, "serve", false, "serve the read API while polling")
	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}
	if f.once && f.continuous {
		return flags{}, errors.New("-once and -continuous are mutually exclusive")
	}
	return f, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	f, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", f.configPath, err)
		return 1
	}
	applyFlags(cfg, f)

	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: "outaged"})
	log.Info().Str("config", f.configPath).Msg("configuration loaded")

	groups, err := cfg.ResolveGroups(f.groups, f.groupsFile)
	if err != nil {
		log.Error().Err(err).Msg("failed to load group list")
		return 1
	}
	if len(groups) > 0 {
		log.Info().Strs("groups", groups).Msg("processing selected groups only")
	}

	gormDB, err := db.Init(&cfg.Database, logger.Named(log, "db"))
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize database")
		return 1
	}
	appStore := store.NewGormStore(gormDB)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if done, code := runMaintenance(ctx, f, cfg.Monitor.RetentionDays, appStore, log); done {
		return code
	}

	writer, err := calendar.NewFileWriter(cfg.Calendar.OutputDir, cfg.Calendar.Name, cfg.Monitor.Location, logger.Named(log, "calendar"))
	if err != nil {
		log.Error().Err(err).Msg("failed to prepare calendar output")
		return 1
	}
	source := scraper.New(
		scraper.NewBrowserFetcher(cfg.Scraper, logger.Named(log, "browser")),
		cfg.Monitor.Location,
		logger.Named(log, "scraper"),
	)

	opts := monitor.Options{
		Location:      cfg.Monitor.Location,
		UIDDomain:     cfg.Monitor.UIDDomain,
		Groups:        groups,
		RetentionDays: cfg.Monitor.RetentionDays,
		RawDataDir:    cfg.Monitor.RawDataDir,
		Combined:      cfg.Calendar.Combined != nil && *cfg.Calendar.Combined,
	}

	if !f.continuous {
		svc := monitor.NewService(opts, source, appStore, writer, nil, logger.Named(log, "monitor"))
		svc.LogStats(ctx)
		rep := svc.RunOnce(ctx)
		log.Info().Str("status", string(rep.Status)).Msg("single run finished")
		if rep.Status == monitor.StatusError {
			return 1
		}
		return 0
	}

	var webpushOptions *webpush.Options
	var notifier monitor.Notifier
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions, logger.Named(log, "push"))
		pool.Start(ctx)
		notifier = pool
	} else {
		log.Info().Msg("VAPID keys not configured, push notifications disabled")
	}

	svc := monitor.NewService(opts, source, appStore, writer, notifier, logger.Named(log, "monitor"))
	svc.LogStats(ctx)

	var server *http.Server
	if cfg.Server.Enabled || f.serve {
		server = startServer(cfg, appStore, webpushOptions, logger.Named(log, "api"))
	}

	if err := svc.Run(ctx, cfg.Monitor.Schedule); err != nil {
		log.Error().Err(err).Msg("monitoring stopped")
		return 1
	}

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown")
		}
	}
	log.Info().Msg("stopped")
	return 0
}

func applyFlags(cfg *config.Config, f flags) {
	if f.dbPath != "" {
		cfg.Database.DSN = f.dbPath
	}
	if f.retentionDays > 0 {
		cfg.Monitor.RetentionDays = f.retentionDays
	}
}

// runMaintenance handles the one-shot database commands. done is false when
// none was requested.
func runMaintenance(ctx context.Context, f flags, retentionDays int, s store.Store, log zerolog.Logger) (done bool, code int) {
	switch {
	case f.exportCSV != "":
		out, err := os.Create(f.exportCSV)
		if err != nil {
			log.Error().Err(err).Msg("create export file")
			return true, 1
		}
		defer out.Close()
		n, err := s.ExportCSV(ctx, out)
		if err != nil {
			log.Error().Err(err).Msg("export failed")
			return true, 1
		}
		log.Info().Int("rows", n).Str("file", f.exportCSV).Msg("periods exported")
		return true, 0

	case f.stats:
		st, err := s.Stats(ctx, time.Now())
		if err != nil {
			log.Error().Err(err).Msg("load stats")
			return true, 1
		}
		log.Info().
			Int64("total", st.Total).
			Int64("unique_dates", st.UniqueDates).
			Int64("unique_groups", st.UniqueGroups).
			Interface("by_state", st.ByState).
			Interface("by_status", st.ByStatus).
			Int64("last_24h", st.Last24h).
			Int64("sent", st.Sent).
			Int64("unsent", st.Unsent).
			Msg("database stats")
		return true, 0

	case f.queryDate != "":
		periods, err := s.PeriodsByDate(ctx, f.queryDate)
		if err != nil {
			log.Error().Err(err).Msg("query periods")
			return true, 1
		}
		for _, p := range periods {
			log.Info().
				Str("group", p.GroupName).
				Str("status", string(p.Status)).
				Str("from", p.WindowFrom).
				Str("to", p.WindowTo).
				Str("state", string(p.State)).
				Bool("sent", p.Sent).
				Str("event_id", p.EventID).
				Msg("period")
		}
		log.Info().Int("count", len(periods)).Str("date", f.queryDate).Msg("query finished")
		return true, 0

	case f.cleanup:
		days := retentionDays
		n, err := s.PurgeOlderThan(ctx, time.Now().AddDate(0, 0, -days))
		if err != nil {
			log.Error().Err(err).Msg("cleanup failed")
			return true, 1
		}
		log.Info().Int64("rows", n).Int("days", days).Msg("old periods purged")
		return true, 0
	}
	return false, 0
}

func startServer(cfg *config.Config, s store.Store, wp *webpush.Options, log zerolog.Logger) *http.Server {
	router := api.NewRouter(s, api.RouterOptions{
		Webpush:      wp,
		Location:     cfg.Monitor.Location,
		CalendarName: cfg.Calendar.Name,
		RateLimit:    rate.Limit(cfg.Server.RateLimitPerSec),
		RateBurst:    cfg.Server.RateBurst,
		CacheTTL:     time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
		Log:          log,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()
	return server
}
