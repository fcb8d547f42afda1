// Package jobs wires background processing: the recurring scheduler tick and
// the balance reconciliation sweep, both driven by Asynq cron entries.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRecurringProcessDue generates due recurring documents.
	TaskRecurringProcessDue = "recurring:process_due"
	// TaskLedgerReconcile verifies cached account balances against journal lines.
	TaskLedgerReconcile = "ledger:reconcile"
)

// TickPayload carries scheduling metadata shared by the cron-driven tasks.
type TickPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewRecurringProcessDueTask constructs the scheduler tick task.
func NewRecurringProcessDueTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(TickPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecurringProcessDue, body, asynq.Queue(QueueDefault)), nil
}

// NewLedgerReconcileTask constructs the reconciliation sweep task.
func NewLedgerReconcileTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(TickPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcile, body, asynq.Queue(QueueDefault)), nil
}
