package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autoindex/idxadvisor/internal/logger"
	"github.com/autoindex/idxadvisor/pkg/api"
	"github.com/autoindex/idxadvisor/pkg/domain"
	"github.com/autoindex/idxadvisor/pkg/engine"
	"github.com/autoindex/idxadvisor/pkg/server"
	"github.com/autoindex/idxadvisor/pkg/storage"
	"github.com/autoindex/idxadvisor/pkg/storesource"
)

func main() {
	cfg := domain.DefaultConfig()

	// Command line flags
	var (
		port           = flag.String("port", "8080", "Server port")
		dataFile       = flag.String("data-file", "go-db_data.godb", "Data file path for persistence")
		dataDir        = flag.String("data-dir", ".", "Data directory for storage")
		maxMemory      = flag.Int("max-memory", 1024, "Maximum memory usage in MB")
		backgroundSave = flag.Duration("background-save", 0, "Background save interval (e.g., 5m, 30s). Set to 0 to disable.")
		showHelp       = flag.Bool("help", false, "Show help message")

		logLevel  = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		logPretty = flag.Bool("log-pretty", false, "Pretty-print logs for local development")

		sampleSize                = flag.Int("sample-size", cfg.SampleSize, "Documents sampled per collection/index statistics pass")
		sampleSpeed               = flag.Duration("sample-speed", cfg.SampleSpeed, "Time budget spread across one sampling pass")
		cardinalityUpdateInterval = flag.Duration("cardinality-update-interval", cfg.CardinalityUpdateInterval, "Minimum interval between re-sampling a collection's field statistics")
		minimumCardinality        = flag.Int64("minimum-cardinality", cfg.MinimumCardinality, "Fields below this distinct-value count are dropped from a recommended index unless that would leave it empty")
		minimumReduction          = flag.Float64("minimum-reduction", cfg.MinimumReduction, "Minimum fractional cardinality reduction a prefix position must contribute")
		indexExtension            = flag.Bool("index-extension", cfg.IndexExtension, "Allow extending simplified indexes with additional free fields")
		longestIndexableValue     = flag.Int("longest-indexable-value", cfg.LongestIndexable, "Values longer than this are refused at index-create time")
		recentQueriesOnlyDays     = flag.Int("recent-queries-only-days", cfg.RecentQueriesOnlyDays, "Ignore profiles not observed within this many days (-1 disables)")
		minimumQueryCount         = flag.Int64("minimum-query-count", cfg.MinimumQueryCount, "Profiles below this usage count are ignored during optimization")
		indexSyncInterval         = flag.Duration("index-sync-interval", cfg.IndexSynchronizationInterval, "Interval between synchronization cycles")
		profileLevel              = flag.Int("profile-level", cfg.ProfileLevel, "Query profiling level reported to the advisor (-1 leaves the source's own setting alone)")
		doChanges                 = flag.Bool("do-changes", cfg.DoChanges, "Apply reconciliation's create/drop actions instead of only computing them")
		showChangesOnly           = flag.Bool("show-changes-only", cfg.ShowChangesOnly, "Compute and log the reconciliation diff without applying it")
		simple                    = flag.Bool("simple", cfg.Simple, "Disable index extension for a simpler recommendation model")
		verbose                   = flag.Bool("verbose", cfg.Verbose, "Verbose advisor logging")
		debug                     = flag.Bool("debug", cfg.Debug, "Debug advisor logging")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\ngo-db is an in-memory document database with an embedded index advisor.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                    # Start with defaults\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -port 9090 -max-memory 2048       # Custom port and memory\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -background-save 5m               # Auto-save every 5 minutes\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -do-changes                       # Apply the advisor's recommendations\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nSafety Note:\n")
		fmt.Fprintf(os.Stderr, "  Without -background-save, data is only saved on graceful shutdown.\n")
		fmt.Fprintf(os.Stderr, "  Without -do-changes, the advisor only reports recommendations; it never\n")
		fmt.Fprintf(os.Stderr, "  creates or drops indexes.\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	logger.Init(logger.Config{Level: *logLevel, Pretty: *logPretty})

	cfg.SampleSize = *sampleSize
	cfg.SampleSpeed = *sampleSpeed
	cfg.CardinalityUpdateInterval = *cardinalityUpdateInterval
	cfg.MinimumCardinality = *minimumCardinality
	cfg.MinimumReduction = *minimumReduction
	cfg.IndexExtension = *indexExtension
	cfg.LongestIndexable = *longestIndexableValue
	cfg.RecentQueriesOnlyDays = *recentQueriesOnlyDays
	cfg.MinimumQueryCount = *minimumQueryCount
	cfg.IndexSynchronizationInterval = *indexSyncInterval
	cfg.ProfileLevel = *profileLevel
	cfg.DoChanges = *doChanges
	cfg.ShowChangesOnly = *showChangesOnly
	cfg.Simple = *simple
	cfg.Verbose = *verbose
	cfg.Debug = *debug

	if cfg.Simple {
		cfg.IndexExtension = false
	}

	// Build storage options based on flags
	var storageOptions []storage.StorageOption

	if *dataDir != "." {
		storageOptions = append(storageOptions, storage.WithDataDir(*dataDir))
		log.Info().Str("dir", *dataDir).Msg("using data directory")
	}
	if *maxMemory != 1024 {
		storageOptions = append(storageOptions, storage.WithMaxMemory(*maxMemory))
		log.Info().Int("mb", *maxMemory).Msg("max memory configured")
	}
	if *backgroundSave > 0 {
		storageOptions = append(storageOptions, storage.WithBackgroundSave(*backgroundSave))
		log.Info().Dur("interval", *backgroundSave).Msg("background save enabled")
	} else {
		log.Warn().Msg("background save disabled, data only saved on graceful shutdown")
	}

	// Create a new server with storage options
	srv := server.NewServer(storageOptions...)
	defer srv.StopBackgroundWorkers()

	log.Info().Str("file", *dataFile).Msg("loading data")
	srv.InitDB(*dataFile)
	srv.StartBackgroundWorkers()

	// Wire the index advisor engine onto the same storage engine
	dataSource := storesource.New(srv.StorageEngine(), cfg.LongestIndexable)
	adv := engine.New(dataSource, dataSource, cfg, "")
	if err := adv.Restore(); err != nil {
		log.Warn().Err(err).Msg("could not restore persisted advisor state, starting fresh")
	}

	srv.Handler().SetQueryObserver(dataSource)
	srv.RegisterAdmin(api.NewAdminHandler(reportAdapter{adv}))

	engineErrCh := make(chan error, 1)
	go func() {
		engineErrCh <- adv.Run()
	}()

	// Create HTTP server
	httpServer := &http.Server{
		Addr:    ":" + *port,
		Handler: srv.Router(),
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Msg("starting go-db server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal, or a fatal advisor error, to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("shutting down")
	case err := <-engineErrCh:
		if err != nil {
			var fatal *engine.FatalError
			log.Error().Err(err).Msg("index advisor stopped")
			if asFatalError(err, &fatal) {
				log.Fatal().Err(fatal.Err).Msg("index advisor hit a fatal error, exiting")
			}
		}
	}

	adv.Stop()

	log.Info().Str("file", *dataFile).Msg("saving data")
	srv.SaveDB(*dataFile)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

// asFatalError reports whether err is an *engine.FatalError, writing it
// into *target.
func asFatalError(err error, target **engine.FatalError) bool {
	fe, ok := err.(*engine.FatalError)
	if !ok {
		return false
	}
	*target = fe
	return true
}

// reportAdapter exposes an *engine.Engine as an api.AdvisorReport: the
// two signatures differ only in how they spell "no result for this
// namespace" (engine.LastResult returns a concrete *reconciler.Result,
// api.AdvisorReport reports interface{} so pkg/api need not import
// pkg/reconciler).
type reportAdapter struct {
	engine *engine.Engine
}

func (a reportAdapter) Profiles() []*domain.QueryProfile {
	return a.engine.Profiles()
}

func (a reportAdapter) Recommended() map[string]*domain.IndexSet {
	return a.engine.Recommended()
}

func (a reportAdapter) LastResult(namespace string) (interface{}, bool) {
	result, ok := a.engine.LastResult(namespace)
	if !ok {
		return nil, false
	}
	return result, true
}

func (a reportAdapter) TriggerSync() error {
	return a.engine.TriggerSync()
}
