package handler

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"covod-recorder/dto"
	"covod-recorder/service"
)

type ServiceDependencies struct {
	MergeService  service.MergeService
	UploadService service.UploadService
}

func MergeJobHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var message dto.MergeJobMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal merge message")
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", message.JobId.String()).
		Str("session_key", message.SessionKey).
		Msg("received merge message")

	return deps.MergeService.ProcessMerge(ctx, message)
}

func UploadJobHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var message dto.UploadJobMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal upload message")
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", message.JobId.String()).
		Str("file", message.FilePath).
		Msg("received upload message")

	return deps.UploadService.ProcessUpload(ctx, message)
}
