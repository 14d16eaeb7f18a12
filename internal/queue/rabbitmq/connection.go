package rabbitmq

import (
	"realtime-notifier/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
	wbfrabbit "github.com/wb-go/wbf/rabbitmq"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

const (
	exchangeName  = "notification_deliveries"
	queueName     = "deliveries"
	dlqName       = "deliveries_dlq"
	routingKey    = "deliver"
	dlqRoutingKey = "dead"
)

// Queue is the RabbitMQ-backed durable queue transport. Messages carry only
// notification ids; retry backoff rides on the delayed-message exchange.
type Queue struct {
	client    *wbfrabbit.RabbitClient
	publisher *wbfrabbit.Publisher
	retries   retry.Strategy
}

func New(cfg *config.Config, retries retry.Strategy) *Queue {
	rabbitCfg := wbfrabbit.ClientConfig{
		URL:            cfg.RabbitMQDSN(),
		ConnectTimeout: cfg.RabbitMQ.ConnectTimeout,
		Heartbeat:      cfg.RabbitMQ.Heartbeat,
		PublishRetry:   retries,
		ConsumeRetry:   retries,
	}
	client, err := wbfrabbit.NewClient(rabbitCfg)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("Failed to create RabbitMQ client")
	}
	ch, err := client.GetChannel()
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("Failed to get channel for declarations")
	}
	defer ch.Close()
	err = ch.ExchangeDeclare(exchangeName, "x-delayed-message", true, false, false, false, amqp.Table{"x-delayed-type": "direct"})
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("Failed to declare exchange")
	}
	_, err = ch.QueueDeclare(queueName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    exchangeName,
		"x-dead-letter-routing-key": dlqRoutingKey,
	})
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("Failed to declare queue")
	}
	err = ch.QueueBind(queueName, routingKey, exchangeName, false, nil)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("Failed to bind queue")
	}
	_, err = ch.QueueDeclare(dlqName, true, false, false, false, nil)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("Failed to declare DLQ")
	}
	err = ch.QueueBind(dlqName, dlqRoutingKey, exchangeName, false, nil)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("Failed to bind DLQ")
	}
	return &Queue{
		client:    client,
		publisher: wbfrabbit.NewPublisher(client, exchangeName, "application/json"),
		retries:   retries,
	}
}

func (q *Queue) Close() error {
	zlog.Logger.Info().Msg("Closing RabbitMQ connection")
	return q.client.Close()
}
