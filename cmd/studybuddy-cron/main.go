// Command studybuddy-cron runs the scheduled LMS sync sweep (spec §4.H's
// scheduled entrypoint, component L) on a standalone cron schedule, for
// deployments that don't run a Temporal cluster and instead drive
// schedulerhook.Hook directly off a process-local timer.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/antigravity-dev/studybuddy/internal/canvasclient"
	"github.com/antigravity-dev/studybuddy/internal/config"
	"github.com/antigravity-dev/studybuddy/internal/lmssync"
	"github.com/antigravity-dev/studybuddy/internal/lockfile"
	"github.com/antigravity-dev/studybuddy/internal/objectstore"
	"github.com/antigravity-dev/studybuddy/internal/retrypolicy"
	"github.com/antigravity-dev/studybuddy/internal/schedulerhook"
	"github.com/antigravity-dev/studybuddy/internal/store"
)

func main() {
	configPath := flag.String("config", "studybuddy.toml", "path to config file")
	schedule := flag.String("schedule", "@every 30m", "robfig/cron schedule expression for the sync sweep")
	dev := flag.Bool("dev", false, "use text log format (default is JSON)")
	flag.Parse()

	var logger *slog.Logger
	if *dev {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	lockFile, err := lockfile.Acquire(config.ExpandHome(cfg.LockFilePath) + ".cron")
	if err != nil {
		logger.Error("failed to acquire lock", "error", err)
		os.Exit(1)
	}
	defer lockfile.Release(lockFile)

	st, err := store.Open(config.ExpandHome(cfg.StateDBPath))
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	obj, err := objectstore.NewLocal(cfg.ObjectStoreDir)
	if err != nil {
		logger.Error("failed to open object store", "error", err)
		os.Exit(1)
	}

	syncer := &lmssync.Syncer{
		Canvas: canvasclient.New(cfg.CanvasUserAgent),
		Store:  st,
		Object: obj,
		Limits: lmssync.Limits{
			MaxFileBytes:               cfg.CanvasMaxFileBytes,
			MaxFilesPerCourse:          cfg.CanvasMaxFilesPerCourse,
			MaxFilesTotal:              cfg.CanvasMaxFilesTotal,
			AllowedMaterialContentType: cfg.CanvasAllowedMaterialContentType,
		},
		Logger:            logger.With("component", "schedulerhook"),
		SuppressKBTrigger: true,
	}
	hook := &schedulerhook.Hook{Store: st, Syncer: syncer}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const maxRetryAttempts = 3
	var runSweep func(attempt int)
	runSweep = func(attempt int) {
		result, err := hook.Run(ctx)
		if err != nil {
			logger.Error("scheduled sync sweep failed", "attempt", attempt, "error", err)
			if attempt < maxRetryAttempts {
				delay := retrypolicy.BackoffDelay(attempt, 10*time.Second, 5*time.Minute)
				logger.Info("retrying scheduled sync sweep", "attempt", attempt+1, "delay", delay.String())
				time.AfterFunc(delay, func() { runSweep(attempt + 1) })
			}
			return
		}
		logger.Info("scheduled sync sweep complete",
			"users_succeeded", result.UsersSucceeded,
			"users_failed", result.UsersFailed,
			"courses_upserted", result.CoursesUpserted,
			"items_upserted", result.ItemsUpserted,
			"materials_upserted", result.MaterialsUpserted,
		)
	}

	c := cron.New()
	if _, err := c.AddFunc(*schedule, func() {
		runSweep(1)
	}); err != nil {
		logger.Error("invalid cron schedule", "schedule", *schedule, "error", err)
		os.Exit(1)
	}

	c.Start()
	logger.Info("studybuddy-cron running", "schedule", *schedule)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("studybuddy-cron stopping")
	stopCtx := c.Stop()
	<-stopCtx.Done()
}
