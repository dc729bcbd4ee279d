package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeExpiryScan     = "expiry:scan"
	TaskTypeReceiptCleanup = "receipts:cleanup"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// DefaultQueues weights the queues a worker polls.
var DefaultQueues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

// ExpiryScanPayload selects the users an expiry scan covers.
type ExpiryScanPayload struct {
	UserID  string `json:"user_id,omitempty"`
	All     bool   `json:"all,omitempty"`
	Trigger string `json:"trigger,omitempty"`
}

type ReceiptCleanupPayload struct{}

// NewExpiryScanTask builds a scan task. Single-user scans are usually a person waiting on
// the result and go to the critical queue.
func NewExpiryScanTask(payload ExpiryScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal expiry scan payload: %w", err)
	}

	queue := QueueDefault
	if !payload.All {
		queue = QueueCritical
	}

	return asynq.NewTask(TaskTypeExpiryScan, data, asynq.Queue(queue), asynq.MaxRetry(3)), nil
}

func NewReceiptCleanupTask() (*asynq.Task, error) {
	data, err := json.Marshal(ReceiptCleanupPayload{})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeReceiptCleanup, data, asynq.Queue(QueueLow), asynq.MaxRetry(0)), nil
}

// DecodeExpiryScan reads the payload of an expiry scan task.
func DecodeExpiryScan(t *asynq.Task) (ExpiryScanPayload, error) {
	var payload ExpiryScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return ExpiryScanPayload{}, fmt.Errorf("decode %s payload: %w", t.Type(), err)
	}
	return payload, nil
}
