// Package scheduler publishes task-run requests for the external scheduler process.
//
// Messages are a wake-up signal only. The broker keeps nothing for absent subscribers, so a
// publish seen by zero subscribers is dropped and still reported as success; stored task
// records stay the source of truth.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qolzam/kinit-dal/internal/database/interfaces"
	"github.com/qolzam/kinit-dal/internal/pkg/log"
	"github.com/qolzam/kinit-dal/internal/platform/config"
)

// OperationAddJob asks the scheduler to register a job.
const OperationAddJob = "add_job"

// Execution strategies understood by the scheduler.
const (
	StrategyInterval = "interval"
	StrategyCron     = "cron"
	StrategyDate     = "date"
	StrategyOnce     = "once"
)

// Publisher is satisfied by redis.UniversalClient.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// TaskDefinition is the part of a stored task the scheduler needs.
type TaskDefinition struct {
	ID           string
	JobClass     string
	ExecStrategy string
	Expression   string
	StartDate    string
	EndDate      string
}

type JobParams struct {
	Name       string  `json:"name"`
	JobClass   string  `json:"job_class"`
	Expression string  `json:"expression,omitempty"`
	StartDate  *string `json:"start_date,omitempty"`
	EndDate    *string `json:"end_date,omitempty"`
}

type JobTask struct {
	ExecStrategy string    `json:"exec_strategy"`
	JobParams    JobParams `json:"job_params"`
}

// JobMessage is the wire format published on the scheduler channel.
type JobMessage struct {
	Operation string  `json:"operation"`
	Task      JobTask `json:"task"`
}

// NewJobMessage builds the add_job message for def. The schedule window travels only with
// interval and cron strategies.
func NewJobMessage(def TaskDefinition) JobMessage {
	params := JobParams{Name: def.ID, JobClass: def.JobClass, Expression: def.Expression}
	if def.ExecStrategy == StrategyInterval || def.ExecStrategy == StrategyCron {
		params.StartDate = optional(def.StartDate)
		params.EndDate = optional(def.EndDate)
	}
	return JobMessage{
		Operation: OperationAddJob,
		Task:      JobTask{ExecStrategy: def.ExecStrategy, JobParams: params},
	}
}

// NewRunOnceMessage builds a message running def's job class a single time, now.
func NewRunOnceMessage(def TaskDefinition) JobMessage {
	return JobMessage{
		Operation: OperationAddJob,
		Task: JobTask{
			ExecStrategy: StrategyOnce,
			JobParams:    JobParams{Name: def.ID, JobClass: def.JobClass},
		},
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Bridge publishes job messages on the configured channel.
type Bridge struct {
	publisher Publisher
	cfg       config.SchedulerConfig
}

// Default channel and publish timeout used when the configuration leaves them empty.
const (
	DefaultChannel        = "kinit_queue"
	DefaultPublishTimeout = 3 * time.Second
)

func NewBridge(publisher Publisher, cfg config.SchedulerConfig) *Bridge {
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	return &Bridge{publisher: publisher, cfg: cfg}
}

// Enqueue publishes def with its own strategy and returns the number of subscribers that
// received it.
func (b *Bridge) Enqueue(ctx context.Context, def TaskDefinition) (int64, error) {
	if err := validate(def); err != nil {
		return 0, err
	}
	if def.ExecStrategy == "" {
		return 0, interfaces.InvalidPayload("task %s has no execution strategy", def.ID)
	}
	return b.Publish(ctx, b.cfg.Channel, NewJobMessage(def))
}

// RunOnce publishes def with the once strategy.
func (b *Bridge) RunOnce(ctx context.Context, def TaskDefinition) (int64, error) {
	if err := validate(def); err != nil {
		return 0, err
	}
	return b.Publish(ctx, b.cfg.Channel, NewRunOnceMessage(def))
}

// Publish sends msg on channel. The publish gets its own deadline and survives cancellation
// of ctx, so a caller that returns right after enqueueing does not abort it.
func (b *Bridge) Publish(ctx context.Context, channel string, msg JobMessage) (int64, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("encode job message: %w", err)
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.PublishTimeout)
	defer cancel()

	receivers, err := b.publisher.Publish(pctx, channel, payload).Result()
	if err != nil {
		log.ErrorWithContext(ctx, "publish %s job %s on %s failed: %v", msg.Task.ExecStrategy, msg.Task.JobParams.Name, channel, err)
		return 0, interfaces.StoreUnavailable("publish "+channel, err)
	}
	if receivers == 0 {
		log.WarnWithContext(ctx, "job %s published on %s with no subscriber", msg.Task.JobParams.Name, channel)
	}
	return receivers, nil
}

func validate(def TaskDefinition) error {
	if def.ID == "" {
		return interfaces.InvalidPayload("task definition has no id")
	}
	if def.JobClass == "" {
		return interfaces.InvalidPayload("task %s has no job class", def.ID)
	}
	return nil
}
