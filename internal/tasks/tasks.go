package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	// Purge expired two-factor challenges left behind by abandoned logins
	TypePurgeChallenges = "auth:purge_challenges"
)

// PurgeChallengesPayload carries the cutoff for the purge run
type PurgeChallengesPayload struct {
	Before time.Time `json:"before"`
}

// NewPurgeChallengesTask creates a task that deletes two-factor
// challenges expired before the given cutoff
func NewPurgeChallengesTask(before time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(PurgeChallengesPayload{Before: before})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypePurgeChallenges, payload), nil
}

// ParsePurgeChallengesPayload parses the purge payload from an Asynq task
func ParsePurgeChallengesPayload(task *asynq.Task) (PurgeChallengesPayload, error) {
	var payload PurgeChallengesPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return payload, nil
}
