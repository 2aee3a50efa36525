package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/antigravity-dev/studybuddy/internal/caltoken"
	"github.com/antigravity-dev/studybuddy/internal/canvasclient"
	"github.com/antigravity-dev/studybuddy/internal/config"
	"github.com/antigravity-dev/studybuddy/internal/dispatch"
	"github.com/antigravity-dev/studybuddy/internal/generation"
	"github.com/antigravity-dev/studybuddy/internal/ingest"
	"github.com/antigravity-dev/studybuddy/internal/kbretrieval"
	"github.com/antigravity-dev/studybuddy/internal/lmssync"
	"github.com/antigravity-dev/studybuddy/internal/lockfile"
	"github.com/antigravity-dev/studybuddy/internal/objectstore"
	"github.com/antigravity-dev/studybuddy/internal/ports"
	"github.com/antigravity-dev/studybuddy/internal/schedulerhook"
	"github.com/antigravity-dev/studybuddy/internal/store"
	"github.com/antigravity-dev/studybuddy/internal/study"
	"github.com/antigravity-dev/studybuddy/internal/temporal"
	"github.com/antigravity-dev/studybuddy/internal/uploads"
)

func configureLogger(logLevel string, useDev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if useDev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// validateRuntimeConfigReload rejects a SIGHUP reload that touches a field
// nothing downstream re-reads after startup, requiring a restart instead of
// silently running with half-applied state.
func validateRuntimeConfigReload(oldCfg, newCfg *config.Config) error {
	if oldCfg == nil || newCfg == nil {
		return fmt.Errorf("invalid config state during reload")
	}
	if oldCfg.StateDBPath != newCfg.StateDBPath {
		return fmt.Errorf("STATE_DB changed (%q -> %q) and requires restart", oldCfg.StateDBPath, newCfg.StateDBPath)
	}
	if oldCfg.Bind != newCfg.Bind {
		return fmt.Errorf("BIND changed (%q -> %q) and requires restart", oldCfg.Bind, newCfg.Bind)
	}
	if oldCfg.ObjectStoreBackend != newCfg.ObjectStoreBackend {
		return fmt.Errorf("OBJECT_STORE_BACKEND changed and requires restart")
	}
	if oldCfg.KBVecDBPath != newCfg.KBVecDBPath {
		return fmt.Errorf("KB_VEC_DB_PATH changed and requires restart")
	}
	if oldCfg.TemporalHostPort != newCfg.TemporalHostPort {
		return fmt.Errorf("TEMPORAL_HOST_PORT changed and requires restart")
	}
	return nil
}

// localEmbedder is a deterministic, dependency-free stand-in for the real
// embedding model ports.KBClient's local backend needs to index and query
// text (kbretrieval.Embedder's own doc comment: "the real embedding model
// is out of scope for the core"). It expands a sha256 digest of the input
// text into a fixed-dimension float32 vector so repeated calls with the
// same text always land at the same point in the index.
func localEmbedder(dim int) kbretrieval.Embedder {
	return func(ctx context.Context, text string) ([]float32, error) {
		vec := make([]float32, dim)
		block := sha256.Sum256([]byte(text))
		for i := range vec {
			seed := sha256.Sum256(append(block[:], byte(i), byte(i>>8)))
			var acc uint32
			for _, b := range seed {
				acc = acc*31 + uint32(b)
			}
			vec[i] = float32(acc%2000)/1000 - 1
		}
		return vec, nil
	}
}

func main() {
	configPath := flag.String("config", "studybuddy.toml", "path to config file")
	dev := flag.Bool("dev", false, "use text log format (default is JSON)")
	flag.Parse()

	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(bootLogger)
	bootLogger.Info("studybuddyd starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfgManager := config.NewManager(cfg)

	logger := configureLogger(cfg.LogLevel, *dev)
	slog.SetDefault(logger)

	lockPath := config.ExpandHome(cfg.LockFilePath)
	lockFile, err := lockfile.Acquire(lockPath)
	if err != nil {
		logger.Error("failed to acquire lock", "error", err)
		os.Exit(1)
	}
	defer lockfile.Release(lockFile)

	dbPath := config.ExpandHome(cfg.StateDBPath)
	st, err := store.Open(dbPath)
	if err != nil {
		logger.Error("failed to open store", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var objStore ports.ObjectStore
	switch cfg.ObjectStoreBackend {
	case "gcs":
		gcs, err := objectstore.NewGCS(ctx, cfg.UploadsBucket)
		if err != nil {
			logger.Error("failed to open gcs object store", "error", err)
			os.Exit(1)
		}
		objStore = gcs
	default:
		local, err := objectstore.NewLocal(cfg.ObjectStoreDir)
		if err != nil {
			logger.Error("failed to open local object store", "error", err)
			os.Exit(1)
		}
		objStore = local
	}

	kb, err := kbretrieval.OpenLocalVecStore(config.ExpandHome(cfg.KBVecDBPath), cfg.KBEmbeddingDim, localEmbedder(cfg.KBEmbeddingDim))
	if err != nil {
		logger.Error("failed to open local knowledge base", "error", err)
		os.Exit(1)
	}

	model := generation.NewMCPModelClient(cfg.ModelMCPCommand, cfg.ModelMCPToolName, cfg.ModelMCPArgs...)

	var guardrail *ports.GuardrailConfig
	if cfg.BedrockGuardrailID != "" {
		guardrail = &ports.GuardrailConfig{ID: cfg.BedrockGuardrailID, Version: cfg.BedrockGuardrailVersion}
	}

	canvasClient := canvasclient.New(cfg.CanvasUserAgent)

	caltokenMinter := &caltoken.Minter{Store: st, Config: cfg}
	studySelector := &study.Selector{Store: st}
	gen := &generation.Generator{KB: kb, Model: model, Store: objStore, Guard: guardrail}
	uploadsMinter := &uploads.Minter{Object: objStore}

	lmsSyncer := &lmssync.Syncer{
		Canvas: canvasClient,
		Store:  st,
		Object: objStore,
		KB:     kb,
		Limits: lmssync.Limits{
			MaxFileBytes:               cfg.CanvasMaxFileBytes,
			MaxFilesPerCourse:          cfg.CanvasMaxFilesPerCourse,
			MaxFilesTotal:              cfg.CanvasMaxFilesTotal,
			AllowedMaterialContentType: cfg.CanvasAllowedMaterialContentType,
		},
		Logger: logger.With("component", "lmssync"),
	}

	scheduledLMSSyncer := &lmssync.Syncer{
		Canvas:            canvasClient,
		Store:             st,
		Object:            objStore,
		KB:                kb,
		Limits:            lmsSyncer.Limits,
		Logger:            logger.With("component", "schedulerhook"),
		SuppressKBTrigger: true,
	}
	hook := &schedulerhook.Hook{Store: st, Syncer: scheduledLMSSyncer, KB: kb}

	ingestHandlers := &ingest.Handlers{
		Store:                     objStore,
		Converter:                 ingest.OfficeDocConverter{},
		Extractor:                 ingest.PDFTextExtractor{},
		OCR:                       ingest.UnconfiguredOCR{},
		KB:                        kb,
		DB:                        st,
		KnowledgeBaseID:           cfg.KnowledgeBaseID,
		KnowledgeBaseDataSourceID: cfg.KnowledgeBaseDataSourceIDResolved(os.Getenv("DATA_SOURCE_ID")),
	}

	temporalClient, err := client.Dial(client.Options{HostPort: cfg.TemporalHostPort})
	if err != nil {
		logger.Error("failed to dial temporal", "host_port", cfg.TemporalHostPort, "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()
	ingestSubmitter := &temporal.IngestSubmitter{Client: temporalClient}

	srv := &dispatch.Server{
		Manager:  cfgManager,
		Store:    st,
		Caltoken: caltokenMinter,
		Study:    studySelector,
		Gen:      gen,
		Uploads:  uploadsMinter,
		LMSSync:  lmsSyncer,
		Canvas:   canvasClient,
		Ingest:   ingestSubmitter,
		Hook:     hook,
		Logger:   logger.With("component", "dispatch"),
	}

	var cfgMu sync.RWMutex
	applyReload := func() error {
		cfgMu.Lock()
		defer cfgMu.Unlock()

		current := cfgManager.Get()
		reloaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		if err := validateRuntimeConfigReload(current, reloaded); err != nil {
			return err
		}
		cfgManager.Set(reloaded)
		logger = configureLogger(reloaded.LogLevel, *dev)
		slog.SetDefault(logger)
		return nil
	}

	go func() {
		logger.Info("starting temporal worker")
		if err := temporal.StartWorker(cfg.TemporalHostPort, ingestHandlers, hook); err != nil {
			logger.Error("temporal worker error", "error", err)
		}
	}()

	go func() {
		if err := srv.Start(ctx); err != nil {
			logger.Error("dispatch server error", "error", err)
		}
	}()

	logger.Info("studybuddyd running", "bind", cfg.Bind)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	for {
		sig := <-sigCh
		switch sig {
		case syscall.SIGHUP:
			if err := applyReload(); err != nil {
				logger.Error(fmt.Sprintf("config reload failed: %v", err))
				continue
			}
			logger.Info("config reloaded")
		case syscall.SIGINT, syscall.SIGTERM:
			shutdownStart := time.Now()
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			logger.Info("studybuddyd stopped", "shutdown_duration", time.Since(shutdownStart).String())
			return
		default:
			shutdownStart := time.Now()
			logger.Info("received unexpected signal, shutting down", "signal", sig)
			cancel()
			logger.Info("studybuddyd stopped", "shutdown_duration", time.Since(shutdownStart).String())
			return
		}
	}
}
