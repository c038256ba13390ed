package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fetcharr/fetcharr/internal/blocklist"
	"github.com/fetcharr/fetcharr/internal/config"
	"github.com/fetcharr/fetcharr/internal/decision"
	"github.com/fetcharr/fetcharr/internal/downloader"
	"github.com/fetcharr/fetcharr/internal/downloader/mock"
	"github.com/fetcharr/fetcharr/internal/engine"
	"github.com/fetcharr/fetcharr/internal/history"
	"github.com/fetcharr/fetcharr/internal/importer"
	"github.com/fetcharr/fetcharr/internal/indexer"
	"github.com/fetcharr/fetcharr/internal/library"
	"github.com/fetcharr/fetcharr/internal/logger"
	"github.com/fetcharr/fetcharr/internal/profile"
	"github.com/fetcharr/fetcharr/internal/queue"
	"github.com/fetcharr/fetcharr/internal/scheduler"
	"github.com/fetcharr/fetcharr/internal/store"
	"github.com/fetcharr/fetcharr/internal/throttle"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// A .env file is optional; environment variables override the config file.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("fetcharr exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	targets := library.NewMemoryStore()
	if err := loadRules(targets, cfg); err != nil {
		return err
	}

	bl := blocklist.NewManager(db, log.Logger)
	if err := bl.Load(ctx); err != nil {
		return fmt.Errorf("loading blocklist: %w", err)
	}

	cooldowns := throttle.NewTracker(db, throttle.Policy{
		Missing:         cfg.Search.CooldownMissing,
		Anime:           cfg.Search.CooldownAnime,
		Stale:           cfg.Search.CooldownStale,
		StaleAfter:      cfg.Search.StaleAfter,
		UnreleasedExtra: cfg.Search.UnreleasedExtra,
	}, log.Logger)
	if err := cooldowns.Load(ctx); err != nil {
		return fmt.Errorf("loading cooldown records: %w", err)
	}

	recorder := history.NewRecorder(db, log.Logger)

	// Clients and indexers are external collaborators; until real ones are
	// configured the daemon runs with an in-memory client on each protocol.
	router := downloader.NewRouter(
		mock.NewClient("mock-torrent", indexer.ProtocolTorrent),
		mock.NewClient("mock-usenet", indexer.ProtocolUsenet),
	)

	tracker := queue.NewTracker(queue.Options{
		Router:       router,
		Store:        db,
		History:      recorder,
		StallTimeout: cfg.Queue.StallTimeout,
	}, log.Logger)
	if err := tracker.Load(ctx); err != nil {
		return fmt.Errorf("restoring queue: %w", err)
	}

	importSvc := importer.NewService(
		targets,
		importer.NewMoveOrganizer(cfg.Import.LibraryDir),
		cfg.Import.MinFileSizeMB<<20,
		log.Logger,
	)

	decider := decision.NewDecider(bl, cfg.Search.PreferredWords, decision.SizePolicy{
		PreferredBytes: int64(cfg.Search.PreferredSizeGB * float64(1<<30)),
	})

	eng := engine.New(engine.Options{
		Config: engine.Config{
			MaxConcurrentSearches: cfg.Search.MaxConcurrentSearches,
			SearchTimeout:         cfg.Search.SearchTimeout,
			MaxRetriesPerCycle:    cfg.Search.MaxRetriesPerCycle,
		},
		Targets:   targets,
		Throttle:  cooldowns,
		Blocklist: bl,
		Decider:   decider,
		Tracker:   tracker,
		Importer:  importSvc,
		History:   recorder,
	}, log.Logger)
	tracker.Bind(eng, eng)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		return err
	}
	if err := registerTasks(sched, eng, tracker, targets, cfg); err != nil {
		return err
	}
	sched.Start()
	for _, task := range sched.ListTasks() {
		log.Info().Str("task", task.Name).Str("cron", task.Cron).Msg("task scheduled")
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Warn().Err(err).Msg("scheduler shutdown error")
		}
	}()

	if cfg.Import.WatchCompleted && cfg.Import.CompletedDir != "" {
		watcher := importer.NewWatcher(cfg.Import.CompletedDir, 5*time.Second, func(path string) {
			if _, err := importSvc.Import(context.Background(), path, "", nil); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("completed download import failed")
			}
		}, log.Logger)
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("import watcher stopped")
			}
		}()
	}

	log.Info().Msg("fetcharr started")
	<-ctx.Done()
	log.Info().Msg("shutting down")
	tracker.WaitHandlers()
	return nil
}

// registerTasks wires the recurring pipeline work.
func registerTasks(sched *scheduler.Scheduler, eng *engine.Engine, tracker *queue.Tracker, targets library.Store, cfg *config.Config) error {
	if err := sched.RegisterTask(scheduler.TaskConfig{
		ID:       "queue-poll",
		Name:     "Queue Poll",
		Interval: cfg.Queue.PollInterval,
		Func: func(ctx context.Context) error {
			tracker.PollOnce(ctx)
			return nil
		},
	}); err != nil {
		return err
	}

	if err := sched.RegisterTask(scheduler.TaskConfig{
		ID:   "rss-sync",
		Name: "RSS Sync",
		Cron: cfg.Search.RssSyncCron,
		Func: func(ctx context.Context) error {
			_, err := eng.TriggerRssSync(ctx, nil)
			return err
		},
	}); err != nil {
		return err
	}

	return sched.RegisterTask(scheduler.TaskConfig{
		ID:         "missing-search",
		Name:       "Missing Item Search",
		Cron:       "0 * * * *",
		RunOnStart: true,
		Func: func(ctx context.Context) error {
			monitored, err := targets.ListMonitored(ctx)
			if err != nil {
				return err
			}
			now := time.Now()
			for _, target := range monitored {
				if target.HasFile() || !target.Released(now) {
					continue
				}
				if _, err := eng.TriggerSearch(ctx, target.ID, false); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

// loadRules seeds the in-memory library with the configured rule sets. The
// library itself is an external collaborator; this keeps the daemon useful
// until one is attached.
func loadRules(targets *library.MemoryStore, cfg *config.Config) error {
	formats, err := profile.LoadCustomFormats(cfg.Search.CustomFormatFile)
	if err != nil {
		return err
	}
	targets.SetCustomFormats(formats)

	defaultProfile := profile.QualityProfile{
		ID:   1,
		Name: "HD-1080p",
		Items: []string{
			"hdtv-720p", "webrip-720p", "webdl-720p", "bluray-720p",
			"hdtv-1080p", "webrip-1080p", "webdl-1080p", "bluray-1080p",
		},
		Cutoff:         "webdl-1080p",
		UpgradeAllowed: true,
	}
	if err := defaultProfile.Validate(); err != nil {
		return err
	}
	targets.PutQualityProfile(defaultProfile)
	return nil
}
