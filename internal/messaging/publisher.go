package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"scenario-server/internal/interfaces"
	"scenario-server/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	appID             = "scenario-server"
	publishAttempts   = 3
	publishTimeout    = 10 * time.Second
	publishRetryDelay = 100 * time.Millisecond
)

// RabbitMQPublisher публикует JSON-сообщения в одну очередь через default exchange.
// amqp.Channel не потокобезопасен для публикации, поэтому запись под мьютексом.
type RabbitMQPublisher struct {
	mu        sync.Mutex
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger
}

var (
	_ interfaces.TaskPublisher         = (*RabbitMQPublisher)(nil)
	_ interfaces.ClientUpdatePublisher = (*RabbitMQPublisher)(nil)
)

// NewBatchTaskPublisher объявляет очередь задач (с DLX) и возвращает паблишер.
func NewBatchTaskPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (*RabbitMQPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("batch task publisher: failed to open channel: %w", err)
	}
	if _, err := declareTaskQueue(ch, queueName); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("batch task publisher: %w", err)
	}
	logger.Info("Batch task queue declared", zap.String("queue", queueName))
	return &RabbitMQPublisher{channel: ch, queueName: queueName, logger: logger.Named("BatchTaskPublisher")}, nil
}

// NewClientUpdatePublisher объявляет очередь событий для клиентов.
func NewClientUpdatePublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (*RabbitMQPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("client update publisher: failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("client update publisher: failed to declare queue '%s': %w", queueName, err)
	}
	logger.Info("Client updates queue declared", zap.String("queue", queueName))
	return &RabbitMQPublisher{channel: ch, queueName: queueName, logger: logger.Named("ClientUpdatePublisher")}, nil
}

func (p *RabbitMQPublisher) PublishBatchTask(ctx context.Context, task models.BatchGenerationTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal batch task %s: %w", task.TaskID, err)
	}
	if err := p.publishMessage(ctx, body, task.TaskID); err != nil {
		p.logger.Error("Failed to publish batch task", zap.String("taskID", task.TaskID), zap.String("scenarioID", task.ScenarioID), zap.Error(err))
		return fmt.Errorf("failed to publish batch task %s: %w", task.TaskID, err)
	}
	p.logger.Info("Batch task published", zap.String("taskID", task.TaskID), zap.String("scenarioID", task.ScenarioID))
	return nil
}

func (p *RabbitMQPublisher) PublishClientUpdate(ctx context.Context, update models.ClientUpdate) error {
	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal client update: %w", err)
	}
	return p.publishMessage(ctx, body, update.TaskID)
}

func (p *RabbitMQPublisher) publishMessage(ctx context.Context, body []byte, correlationID string) error {
	if p.channel == nil {
		return errors.New("rabbitmq channel is not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		err = p.channel.PublishWithContext(ctx,
			"",          // default exchange
			p.queueName, // routing key = имя очереди
			false,       // mandatory
			false,       // immediate
			amqp.Publishing{
				ContentType:   "application/json",
				DeliveryMode:  amqp.Persistent,
				Body:          body,
				Timestamp:     time.Now(),
				AppId:         appID,
				CorrelationId: correlationID,
			},
		)
		if err == nil {
			return nil
		}
		p.logger.Warn("Publish attempt failed", zap.Int("attempt", attempt), zap.String("queue", p.queueName), zap.Error(err))
		select {
		case <-time.After(time.Duration(attempt) * publishRetryDelay):
		case <-ctx.Done():
			return fmt.Errorf("publish to %s cancelled: %w", p.queueName, ctx.Err())
		}
	}
	return fmt.Errorf("failed to publish to queue %s after retries: %w", p.queueName, err)
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return nil
	}
	err := p.channel.Close()
	p.channel = nil
	return err
}
