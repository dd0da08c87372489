package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/config"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/database"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/dispatch"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/insight"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/journal"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/notion"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/reflection"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/server"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/transcript"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "daybook-api",
		Short: "Daybook transcript webhook service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("redis-url", defaults.GetString("redis.url"), "Redis URL for the scheduler and run markers")
	cmd.PersistentFlags().String("reflection-schedule", defaults.GetString("reflection.schedule"), "Cron schedule for the daily reflection")
	cmd.PersistentFlags().String("reflection-timezone", defaults.GetString("reflection.timezone"), "Timezone for day bucketing and the schedule")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "redis.url", "redis-url")
	bindFlag(cmd, "reflection.schedule", "reflection-schedule")
	bindFlag(cmd, "reflection.timezone", "reflection-timezone")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bucketer, err := transcript.NewBucketer(appConfig.Timezone(), appConfig.ReflectionDayBoundary, time.Now)
	if err != nil {
		return err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	journalStore, err := journal.NewGormStore(journal.GormStoreConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	var store journal.Store = journalStore
	var reflectionWriter reflection.ResultWriter
	if appConfig.FirestoreProjectID != "" {
		firestoreClient, err := firestore.NewClient(signalCtx, appConfig.FirestoreProjectID)
		if err != nil {
			return err
		}
		defer firestoreClient.Close()

		firestoreStore, err := journal.NewFirestoreStore(journal.FirestoreStoreConfig{
			Client:     firestoreClient,
			Collection: appConfig.RawCollection,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		store = firestoreStore

		reflectionWriter, err = reflection.NewFirestoreWriter(reflection.FirestoreWriterConfig{
			Client:     firestoreClient,
			Collection: appConfig.ReflectionsCollection,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		logger.Info("firestore stores enabled", zap.String("project", appConfig.FirestoreProjectID))
	}

	var memoryEnricher server.MemoryEnricher
	var dailyEnricher reflection.Enricher
	if appConfig.OpenAIAPIKey != "" {
		completionClient, err := insight.NewOpenAIClient(insight.OpenAIClientConfig{
			APIKey: appConfig.OpenAIAPIKey,
			Model:  appConfig.OpenAIModel,
		})
		if err != nil {
			return err
		}

		memoryProcessor, err := insight.NewProcessor(insight.ProcessorConfig{
			Client:  completionClient,
			Profile: insight.MemoryProfileV1(),
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		memoryEnricher = memoryProcessor

		dailyProfile, ok := insight.ProfileByName(appConfig.InsightProfile)
		if !ok {
			logger.Warn("unknown insight profile, using daily default",
				zap.String("profile", appConfig.InsightProfile))
		}
		dailyProcessor, err := insight.NewProcessor(insight.ProcessorConfig{
			Client:  completionClient,
			Profile: dailyProfile,
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		dailyEnricher = dailyProcessor
	} else {
		logger.Warn("openai api key not configured, enrichment endpoints disabled")
	}

	var pages server.PageCreator
	if appConfig.NotionAPIKey != "" {
		notionWriter, err := notion.NewWriterFromToken(appConfig.NotionAPIKey, appConfig.NotionDatabaseID, logger)
		if err != nil {
			return err
		}
		pages = notionWriter
	} else {
		logger.Warn("notion api key not configured, notion webhook disabled")
	}

	var marker reflection.RunMarker
	if appConfig.RedisURL != "" {
		redisOpts, err := redis.ParseURL(appConfig.RedisURL)
		if err != nil {
			return err
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()
		marker = reflection.NewRedisMarker(redisClient)
	}

	var reflections server.ReflectionRunner
	var reflectionService *reflection.Service
	if dailyEnricher != nil && reflectionWriter != nil {
		reflectionService, err = reflection.NewService(reflection.ServiceConfig{
			Journal:  store,
			Enricher: dailyEnricher,
			Writer:   reflectionWriter,
			Marker:   marker,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		reflections = reflectionService
	} else {
		logger.Warn("reflection pipeline disabled, missing enricher or destination")
	}

	queue := dispatch.NewQueue(dispatch.Config{
		BufferSize:  appConfig.DispatchBufferSize,
		TaskTimeout: appConfig.DispatchTaskTimeout,
		Logger:      logger,
	})
	queue.Start(signalCtx)
	defer func() {
		stop()
		queue.Wait()
	}()

	var enqueuer server.ReflectionEnqueuer
	if appConfig.RedisURL != "" && reflectionService != nil {
		taskClient, err := worker.NewClient(appConfig.RedisURL)
		if err != nil {
			return err
		}
		defer taskClient.Close()
		enqueuer = taskClient

		reflectionWorker, err := worker.NewWorker(worker.WorkerConfig{
			RedisURL:      appConfig.RedisURL,
			Runner:        reflectionService,
			Bucketer:      bucketer,
			DefaultUserID: appConfig.DefaultUserID,
			Logger:        logger,
		})
		if err != nil {
			return err
		}
		if err := reflectionWorker.Start(); err != nil {
			return err
		}
		defer reflectionWorker.Shutdown()

		stopScheduler, err := worker.StartScheduler(worker.SchedulerConfig{
			RedisURL: appConfig.RedisURL,
			Schedule: appConfig.ReflectionSchedule,
			Location: appConfig.Timezone(),
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		defer stopScheduler()
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Journal:        store,
		Queue:          queue,
		Bucketer:       bucketer,
		MemoryEnricher: memoryEnricher,
		Pages:          pages,
		Reflections:    reflections,
		Enqueuer:       enqueuer,
		DefaultUserID:  appConfig.DefaultUserID,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
