package reminder

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TaskTypeDeliverReminder is the asynq task type for delivering a reminder.
const TaskTypeDeliverReminder = "reminder:deliver"

// DeliverReminderPayload is the serialized payload for a delivery task.
type DeliverReminderPayload struct {
	Request ReminderRequest `json:"request"`
}

// NewDeliverReminderTask creates a new asynq task for delivering a reminder.
func NewDeliverReminderTask(req *ReminderRequest) (*asynq.Task, error) {
	payload, err := json.Marshal(DeliverReminderPayload{Request: *req})
	if err != nil {
		return nil, fmt.Errorf("marshaling task payload: %w", err)
	}
	return asynq.NewTask(TaskTypeDeliverReminder, payload), nil
}

// ParseDeliverReminderPayload deserializes the task payload.
func ParseDeliverReminderPayload(data []byte) (*DeliverReminderPayload, error) {
	var p DeliverReminderPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshaling task payload: %w", err)
	}
	return &p, nil
}
