package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"covod-recorder/config"
	"covod-recorder/constant"
	jobHandler "covod-recorder/handler"
	"covod-recorder/pkg/covod"
	"covod-recorder/pkg/rabbitmq"
	"covod-recorder/repository"
	"covod-recorder/service"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(SetupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
	}

	repo := repository.NewRepo(cfg.DB)

	apiClient := covod.NewClient(cfg.API)
	if cfg.API.Username != "" {
		ok, loginErr := apiClient.Login(ctx, cfg.API.Username, cfg.API.Password)
		if loginErr != nil {
			zerolog.Ctx(ctx).Error().Err(loginErr).Msg("archive backend login failed")
		} else if !ok {
			zerolog.Ctx(ctx).Error().Msg("archive backend rejected credentials")
		}
	}

	mergeService := service.NewMergeService(repo, cfg)
	uploadService := service.NewUploadService(apiClient, repo)

	serviceDeps := jobHandler.ServiceDependencies{
		MergeService:  mergeService,
		UploadService: uploadService,
	}

	mergeConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, rabbitmq.MergeTopology, cfg.Server.Workers, jobHandler.MergeJobHandler)
	go func() {
		if err := mergeConsumer.Consume(ctx, serviceDeps); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("merge consumer error")
		}
	}()

	uploadConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, rabbitmq.UploadTopology, cfg.Server.Workers, jobHandler.UploadJobHandler)
	go func() {
		if err := uploadConsumer.Consume(ctx, serviceDeps); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("upload consumer error")
		}
	}()

	r := gin.Default()
	addHealth(r)

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	if err := handler.Shutdown(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

// SetupLogger binds the process logger into a fresh context.
func SetupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	return logger.WithContext(context.Background())
}
