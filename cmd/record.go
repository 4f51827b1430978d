package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"covod-recorder/config"
	"covod-recorder/pkg/rabbitmq"
	"covod-recorder/repository"
	server2 "covod-recorder/server"
	"covod-recorder/service"
)

// record captures a session until interrupted, stages the clips and
// publishes the merge job. Page changes from the companion document viewer
// arrive on a small local http endpoint.
func record(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "record",
		Short: "record a lecture session until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(server2.SetupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
			if err != nil {
				return err
			}

			repo := repository.NewRepo(cfg.DB)
			publisher := rabbitmq.NewPublisher(conn, cfg.Queue)
			timestamps := service.NewTimestampRecorder()
			capture := service.NewCaptureService(cfg.Capture, timestamps)
			runner := service.NewSessionRunner(cfg, capture, timestamps, repo, publisher)

			go servePageEvents(ctx, cfg, runner)

			return runner.Run(ctx)
		},
	}
}

// servePageEvents listens for page-change notifications from the companion
// document viewer while a session records.
func servePageEvents(ctx context.Context, cfg *config.Config, runner *service.SessionRunner) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.POST("/recording/page/:page", func(c *gin.Context) {
		page, err := strconv.Atoi(c.Param("page"))
		if err != nil || page < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page number"})
			return
		}
		runner.PageChanged(page)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("page event listener error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := handler.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("page event listener shutdown")
	}
}
