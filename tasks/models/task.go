package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Task is a stored schedule definition. IsActive and LastRunDatetime are computed from the
// scheduler's collections when the task is read and are never persisted.
type Task struct {
	ID              primitive.ObjectID `json:"id" bson:"_id"`
	Name            string             `json:"name" bson:"name"`
	Group           string             `json:"group" bson:"group"`
	JobClass        string             `json:"job_class" bson:"job_class"`
	ExecStrategy    string             `json:"exec_strategy" bson:"exec_strategy"`
	Expression      string             `json:"expression" bson:"expression"`
	StartDate       string             `json:"start_date,omitempty" bson:"start_date,omitempty"`
	EndDate         string             `json:"end_date,omitempty" bson:"end_date,omitempty"`
	Remark          string             `json:"remark,omitempty" bson:"remark,omitempty"`
	IsActive        bool               `json:"is_active" bson:"is_active"`
	LastRunDatetime *time.Time         `json:"last_run_datetime" bson:"last_run_datetime"`
	CreateDatetime  time.Time          `json:"create_datetime" bson:"create_datetime"`
	UpdateDatetime  time.Time          `json:"update_datetime" bson:"update_datetime"`
}

// TaskInput is the writable part of a task. IsActive asks for the task to be scheduled
// right after it is stored.
type TaskInput struct {
	Name         string `json:"name"`
	Group        string `json:"group"`
	JobClass     string `json:"job_class"`
	ExecStrategy string `json:"exec_strategy"`
	Expression   string `json:"expression"`
	StartDate    string `json:"start_date,omitempty"`
	EndDate      string `json:"end_date,omitempty"`
	Remark       string `json:"remark,omitempty"`
	IsActive     bool   `json:"is_active"`
}

// Document returns the stored fields of in. is_active is not among them.
func (in *TaskInput) Document() map[string]interface{} {
	doc := map[string]interface{}{
		"name":          in.Name,
		"group":         in.Group,
		"job_class":     in.JobClass,
		"exec_strategy": in.ExecStrategy,
		"expression":    in.Expression,
		"remark":        in.Remark,
	}
	if in.StartDate != "" {
		doc["start_date"] = in.StartDate
	}
	if in.EndDate != "" {
		doc["end_date"] = in.EndDate
	}
	return doc
}

// Replacement is Document for updates: an empty schedule window is cleared instead of
// keeping the stored one.
func (in *TaskInput) Replacement() map[string]interface{} {
	doc := in.Document()
	for _, key := range []string{"start_date", "end_date"} {
		if _, ok := doc[key]; !ok {
			doc[key] = nil
		}
	}
	return doc
}

// TaskResult reports a write and how many scheduler subscribers received the follow-up
// enqueue message.
type TaskResult struct {
	ID              string `json:"id"`
	SubscriberCount int64  `json:"subscribe_number"`
	IsActive        bool   `json:"is_active"`
}

// TaskGroup is a named bucket of tasks, created on first use.
type TaskGroup struct {
	ID             primitive.ObjectID `json:"id" bson:"_id"`
	Value          string             `json:"value" bson:"value"`
	CreateDatetime time.Time          `json:"create_datetime" bson:"create_datetime"`
	UpdateDatetime time.Time          `json:"update_datetime" bson:"update_datetime"`
}

// SchedulerJob is the scheduler's entry for a live job, keyed by the task id string.
type SchedulerJob struct {
	ID           string  `json:"id" bson:"_id"`
	NextRunTime  float64 `json:"next_run_time,omitempty" bson:"next_run_time,omitempty"`
	JobStateBlob []byte  `json:"-" bson:"job_state,omitempty"`
}

// TaskRecord is one execution written by the scheduler.
type TaskRecord struct {
	ID             primitive.ObjectID `json:"id" bson:"_id"`
	JobID          string             `json:"job_id" bson:"job_id"`
	JobClass       string             `json:"job_class,omitempty" bson:"job_class,omitempty"`
	Name           string             `json:"name,omitempty" bson:"name,omitempty"`
	StartTime      *time.Time         `json:"start_time,omitempty" bson:"start_time,omitempty"`
	EndTime        *time.Time         `json:"end_time,omitempty" bson:"end_time,omitempty"`
	ProcessTime    float64            `json:"process_time,omitempty" bson:"process_time,omitempty"`
	Retval         string             `json:"retval,omitempty" bson:"retval,omitempty"`
	Exception      string             `json:"exception,omitempty" bson:"exception,omitempty"`
	CreateDatetime time.Time          `json:"create_datetime" bson:"create_datetime"`
}
