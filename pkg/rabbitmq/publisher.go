package rabbitmq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"covod-recorder/config"
)

// Publisher pushes job messages onto an exchange.
type Publisher struct {
	conn *amqp.Connection
	cfg  *config.RabbitMQ
}

func NewPublisher(conn *amqp.Connection, cfg *config.RabbitMQ) *Publisher {
	return &Publisher{
		conn: conn,
		cfg:  cfg,
	}
}

// Publish marshals body as JSON and publishes it persistently under the
// topology's routing key.
func (p *Publisher) Publish(ctx context.Context, topology Topology, body interface{}) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(topology.Exchange, p.cfg.Kind, true, false, false, false, nil); err != nil {
		zerolog.Ctx(ctx).Error().Str("exchange", topology.Exchange).Msg("failed to declare exchange")
		return err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, topology.Exchange, topology.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         data,
	})
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("exchange", topology.Exchange).
		Str("routing_key", topology.RoutingKey).
		Msg("message published")
	return nil
}
