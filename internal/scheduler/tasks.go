// Package scheduler integrates the asynq task queue: typed task payloads,
// the enqueue client and the background worker.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskCampaignDispatch = "campaigns.dispatch"

const TaskReassignmentSweep = "routing.reassignment.sweep"

type CampaignDispatchPayload struct {
	CampaignID string `json:"campaignId"`
}

func NewCampaignDispatchTask(payload CampaignDispatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCampaignDispatch, data), nil
}

func ParseCampaignDispatchPayload(task *asynq.Task) (CampaignDispatchPayload, error) {
	var payload CampaignDispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return CampaignDispatchPayload{}, err
	}
	return payload, nil
}

func NewReassignmentSweepTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskReassignmentSweep, nil), nil
}
