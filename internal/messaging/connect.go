package messaging

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ConnectRabbitMQ подключается к RabbitMQ с повторными попытками.
func ConnectRabbitMQ(ctx context.Context, url string, maxRetries int, retryDelay time.Duration, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	if maxRetries < 1 {
		maxRetries = 1
	}
	for attempt := 1; attempt <= maxRetries; attempt++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			logger.Info("RabbitMQ connected successfully", zap.Int("attempt", attempt))
			return conn, nil
		}
		logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxRetries),
			zap.Error(err),
		)
		if attempt == maxRetries {
			break
		}
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
}

// dlxName - dead letter exchange очереди задач.
func dlxName(queueName string) string { return queueName + "_dlx" }

func dlqName(queueName string) string { return queueName + "_dlq" }

const dlqRoutingKey = "dlq"

// declareTaskQueue объявляет очередь задач вместе с DLX/DLQ. Параметры должны совпадать
// у паблишера и консьюмера, поэтому объявление собрано в одном месте.
func declareTaskQueue(ch *amqp.Channel, queueName string) (amqp.Queue, error) {
	if err := ch.ExchangeDeclare(dlxName(queueName), "direct", true, false, false, false, nil); err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to declare DLX '%s': %w", dlxName(queueName), err)
	}
	if _, err := ch.QueueDeclare(dlqName(queueName), true, false, false, false, nil); err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to declare DLQ '%s': %w", dlqName(queueName), err)
	}
	if err := ch.QueueBind(dlqName(queueName), dlqRoutingKey, dlxName(queueName), false, nil); err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to bind DLQ '%s': %w", dlqName(queueName), err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    dlxName(queueName),
		"x-dead-letter-routing-key": dlqRoutingKey,
	}
	q, err := ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		args,
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to declare queue '%s': %w", queueName, err)
	}
	return q, nil
}
