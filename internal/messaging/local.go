package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"scenario-server/internal/interfaces"
	"scenario-server/internal/models"

	"go.uber.org/zap"
)

// TaskRunner выполняет задачу пакетной генерации (реализует service.BatchAssetOrchestrator).
type TaskRunner interface {
	RunTask(ctx context.Context, task models.BatchGenerationTask) models.BatchResult
}

// LogClientUpdatePublisher пишет события клиентам в лог, когда RabbitMQ отключен.
type LogClientUpdatePublisher struct {
	logger *zap.Logger
}

var _ interfaces.ClientUpdatePublisher = (*LogClientUpdatePublisher)(nil)

func NewLogClientUpdatePublisher(logger *zap.Logger) *LogClientUpdatePublisher {
	return &LogClientUpdatePublisher{logger: logger.Named("ClientUpdates")}
}

func (p *LogClientUpdatePublisher) PublishClientUpdate(_ context.Context, update models.ClientUpdate) error {
	body, err := json.Marshal(update)
	if err != nil {
		return err
	}
	p.logger.Info("Client update",
		zap.String("type", update.Type),
		zap.String("scenarioID", update.ScenarioID),
		zap.ByteString("payload", body),
	)
	return nil
}

// LocalTaskPublisher выполняет задачи в горутинах текущего процесса.
// Используется без RabbitMQ; задачи теряются при остановке процесса.
type LocalTaskPublisher struct {
	runner  TaskRunner
	timeout time.Duration
	wg      sync.WaitGroup
	logger  *zap.Logger
}

var _ interfaces.TaskPublisher = (*LocalTaskPublisher)(nil)

// NewLocalTaskPublisher. timeout <= 0 - без ограничения по времени.
func NewLocalTaskPublisher(runner TaskRunner, timeout time.Duration, logger *zap.Logger) *LocalTaskPublisher {
	return &LocalTaskPublisher{runner: runner, timeout: timeout, logger: logger.Named("LocalTaskPublisher")}
}

func (p *LocalTaskPublisher) PublishBatchTask(ctx context.Context, task models.BatchGenerationTask) error {
	// Задача переживает HTTP-запрос, который ее поставил.
	runCtx := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("PANIC in local batch task", zap.String("taskID", task.TaskID), zap.Any("panic", r), zap.Stack("stack"))
			}
		}()
		ctx := runCtx
		if p.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(runCtx, p.timeout)
			defer cancel()
		}
		res := p.runner.RunTask(ctx, task)
		p.logger.Info("Local batch task finished",
			zap.String("taskID", task.TaskID),
			zap.String("scenarioID", task.ScenarioID),
			zap.Bool("success", res.Success),
		)
	}()
	return nil
}

// Wait ждет завершения всех запущенных задач.
func (p *LocalTaskPublisher) Wait() {
	p.wg.Wait()
}
