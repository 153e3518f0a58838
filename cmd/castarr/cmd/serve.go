package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/castarr/castarr/internal/bumper"
	"github.com/castarr/castarr/internal/concat"
	"github.com/castarr/castarr/internal/config"
	"github.com/castarr/castarr/internal/database"
	"github.com/castarr/castarr/internal/epg"
	internalhttp "github.com/castarr/castarr/internal/http"
	"github.com/castarr/castarr/internal/http/handlers"
	"github.com/castarr/castarr/internal/maintenance"
	"github.com/castarr/castarr/internal/observability"
	"github.com/castarr/castarr/internal/playlist"
	"github.com/castarr/castarr/internal/repository"
	"github.com/castarr/castarr/internal/runtime"
	"github.com/castarr/castarr/internal/scanner"
	"github.com/castarr/castarr/internal/timeline"
	"github.com/castarr/castarr/internal/transcoder"
	"github.com/castarr/castarr/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the castarr server",
	Long: `Start the castarr HTTP server.

The server provides:
- REST API for channels, buckets, schedule blocks and the program guide
- HLS streaming endpoints under /stream/{slug}/
- XMLTV export at /xmltv
- Health check endpoint and OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("database", "castarr.db", "Database DSN")
	serveCmd.Flags().String("data-dir", "./data", "Data directory for channel output")

	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("database.dsn", serveCmd.Flags().Lookup("database"))
	viper.BindPFlag("storage.data_dir", serveCmd.Flags().Lookup("data-dir"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting castarr", slog.String("version", version.Short()))

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	// Repositories.
	channelRepo := repository.NewChannelRepository(db.DB)
	mediaRepo := repository.NewMediaFileRepository(db.DB)
	bucketRepo := repository.NewBucketRepository(db.DB)
	blockRepo := repository.NewScheduleBlockRepository(db.DB)
	progressionRepo := repository.NewProgressionRepository(db.DB)
	sessionRepo := repository.NewPlaybackSessionRepository(db.DB)
	scheduleTimeRepo := repository.NewScheduleTimeRepository(db.DB)
	settingRepo := repository.NewSettingRepository(db.DB)
	folderRepo := repository.NewLibraryFolderRepository(db.DB)

	// Core services.
	resolver := playlist.NewResolver(bucketRepo, blockRepo, progressionRepo, logger)
	tl := timeline.NewService(scheduleTimeRepo, logger)
	guide := epg.NewGenerator(tl, resolver, cfg.EPG.Horizon, logger)
	concatMgr := concat.NewManager(logger)
	bumpers := bumper.NewGenerator(cfg.FFmpeg.BinaryPath, logger)
	adapter := transcoder.NewFFmpeg(cfg.FFmpeg.BinaryPath, logger)
	library := scanner.New(folderRepo, mediaRepo, scanner.NewFFProbe(cfg.FFmpeg.ProbePath), logger)

	rt := runtime.New(channelRepo, sessionRepo, resolver, tl, guide, concatMgr, bumpers, adapter, runtime.Config{
		ProgressionInterval:   cfg.Runtime.ProgressionInterval,
		SettleDelay:           cfg.Runtime.SettleDelay,
		IncludeBumpers:        cfg.Runtime.IncludeBumpers,
		MaxConcurrentStreams:  cfg.Runtime.MaxConcurrentStreams,
		HWAccel:               cfg.FFmpeg.HWAccel,
		ChannelDir:            cfg.Storage.ChannelDir,
		ViewerIdleTimeout:     cfg.Runtime.ViewerSessionIdleTimeout,
		ViewerDisconnectGrace: cfg.Runtime.ViewerDisconnectGrace,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// No encoder survives a restart; reset persisted runtime state before
	// anything can observe it.
	if err := rt.RecoverStartupState(ctx); err != nil {
		return fmt.Errorf("recovering startup state: %w", err)
	}
	rt.AutoStart(ctx)

	// Housekeeping.
	janitor := maintenance.NewRunner(sessionRepo, channelRepo, settingRepo, guide, maintenance.Config{
		Schedule:         cfg.Maintenance.Cron,
		SessionRetention: cfg.Maintenance.SessionRetention,
	}, logger)
	if err := janitor.Start(); err != nil {
		return fmt.Errorf("starting maintenance: %w", err)
	}
	defer janitor.Stop()

	// HTTP server.
	server := internalhttp.NewServer(internalhttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger, version.Short())

	api := server.API()
	handlers.NewChannelHandler(channelRepo, scheduleTimeRepo, rt).WithLogger(logger).Register(api)
	handlers.NewBucketHandler(bucketRepo, mediaRepo, channelRepo, rt).WithLogger(logger).Register(api)
	handlers.NewScheduleBlockHandler(blockRepo, bucketRepo, channelRepo, rt).WithLogger(logger).Register(api)
	handlers.NewMediaHandler(mediaRepo).WithLogger(logger).Register(api)
	handlers.NewLibraryHandler(folderRepo, library).WithLogger(logger).Register(api)
	handlers.NewEPGHandler(channelRepo, guide, fmt.Sprintf("http://%s", cfg.Server.Address())).WithLogger(logger).Register(api)
	handlers.NewHealthHandler(version.Short(), db.DB).Register(api)
	handlers.NewSystemHandler(channelRepo).WithLogger(logger).Register(api)
	handlers.NewStreamHandler(channelRepo, rt).WithLogger(logger).RegisterRoutes(server.Router())

	serveErr := server.ListenAndServe(ctx)

	// Orderly teardown: encoders first so segments stop changing, then cron,
	// then the database (deferred).
	rt.Shutdown(context.Background())

	if serveErr != nil {
		return fmt.Errorf("server: %w", serveErr)
	}
	logger.Info("castarr stopped")
	return nil
}
