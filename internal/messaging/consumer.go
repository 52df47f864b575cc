package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"scenario-server/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// BatchTaskConsumer читает задачи пакетной генерации из очереди и передает их TaskRunner.
type BatchTaskConsumer struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	queueName   string
	runner      TaskRunner
	concurrency int
	logger      *zap.Logger

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewBatchTaskConsumer(conn *amqp.Connection, queueName string, runner TaskRunner, concurrency int, logger *zap.Logger) *BatchTaskConsumer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchTaskConsumer{
		conn:        conn,
		queueName:   queueName,
		runner:      runner,
		concurrency: concurrency,
		logger:      logger.Named("BatchTaskConsumer"),
		done:        make(chan struct{}),
	}
}

// Start блокируется до отмены ctx, вызова Stop или закрытия канала доставки.
func (c *BatchTaskConsumer) Start(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	c.channel = ch
	defer func() { _ = ch.Close() }()

	if _, err := declareTaskQueue(ch, c.queueName); err != nil {
		return err
	}
	// prefetch = concurrency: брокер не выдаст больше задач, чем мы обрабатываем
	if err := ch.Qos(c.concurrency, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		c.queueName,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}
	c.logger.Info("Consumer started", zap.String("queue", c.queueName), zap.Int("concurrency", c.concurrency))

	sem := make(chan struct{}, c.concurrency)
	defer c.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping consumer")
			return nil
		case <-c.done:
			c.logger.Info("Stop requested, stopping consumer")
			return nil
		case d, ok := <-msgs:
			if !ok {
				c.logger.Warn("Delivery channel closed")
				return fmt.Errorf("delivery channel closed for queue %s", c.queueName)
			}
			sem <- struct{}{}
			c.wg.Add(1)
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				defer c.wg.Done()
				c.handleDelivery(ctx, d)
			}(d)
		}
	}
}

func (c *BatchTaskConsumer) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *BatchTaskConsumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("PANIC while handling batch task", zap.Any("panic", r), zap.Stack("stack"))
			_ = d.Nack(false, false)
		}
	}()

	task, err := decodeBatchTask(d.Body)
	if err != nil {
		c.logger.Error("Invalid batch task message, sending to DLQ", zap.Error(err), zap.ByteString("body", d.Body))
		_ = d.Nack(false, false)
		return
	}

	log := c.logger.With(zap.String("taskID", task.TaskID), zap.String("scenarioID", task.ScenarioID))
	log.Info("Batch task received")
	res := c.runner.RunTask(ctx, task)
	if !res.Success && ctx.Err() != nil {
		// воркер останавливается; кредиты уже возвращены, задачу получит другой воркер
		log.Warn("Batch task interrupted by shutdown, requeueing")
		_ = d.Nack(false, true)
		return
	}
	// Результат бизнес-уровня (успех или ошибка) уже опубликован оркестратором,
	// повторная доставка только потратит кредиты снова.
	if err := d.Ack(false); err != nil {
		log.Error("Failed to ack batch task", zap.Error(err))
		return
	}
	log.Info("Batch task processed", zap.Bool("success", res.Success), zap.String("errorKind", string(res.ErrorKind)))
}

func decodeBatchTask(body []byte) (models.BatchGenerationTask, error) {
	var task models.BatchGenerationTask
	if err := json.Unmarshal(body, &task); err != nil {
		return task, fmt.Errorf("failed to unmarshal batch task: %w", err)
	}
	if task.ScenarioID == "" {
		return task, fmt.Errorf("batch task %q has empty scenario_id", task.TaskID)
	}
	return task, nil
}
