package events

import (
	"time"
)

// Event is implemented by every lifecycle notification.
type Event interface {
	EventType() string
	TaskID() string
}

// Event type constants.
const (
	EventTypePlanReady     = "task.plan_ready"
	EventTypeStepStarted   = "task.step_started"
	EventTypeStepCompleted = "task.step_completed"
	EventTypeStepFailed    = "task.step_failed"
	EventTypeTaskArchived  = "task.archived"
)

// PlanReadyEvent is published when a validated plan has been persisted.
type PlanReadyEvent struct {
	ID        string
	StepCount int
	Timestamp time.Time
}

func (e PlanReadyEvent) EventType() string { return EventTypePlanReady }
func (e PlanReadyEvent) TaskID() string    { return e.ID }

// StepStartedEvent is published when a step becomes the in-flight step.
type StepStartedEvent struct {
	ID          string
	StepIndex   int
	Description string
	Timestamp   time.Time
}

func (e StepStartedEvent) EventType() string { return EventTypeStepStarted }
func (e StepStartedEvent) TaskID() string    { return e.ID }

// StepCompletedEvent is published when a step finishes successfully.
type StepCompletedEvent struct {
	ID        string
	StepIndex int
	Tool      string
	Timestamp time.Time
}

func (e StepCompletedEvent) EventType() string { return EventTypeStepCompleted }
func (e StepCompletedEvent) TaskID() string    { return e.ID }

// StepFailedEvent is published when a step fails.
type StepFailedEvent struct {
	ID        string
	StepIndex int
	Tool      string
	Detail    string
	Timestamp time.Time
}

func (e StepFailedEvent) EventType() string { return EventTypeStepFailed }
func (e StepFailedEvent) TaskID() string    { return e.ID }

// TaskArchivedEvent is published when a task reaches a terminal state and
// its file moves to the archive.
type TaskArchivedEvent struct {
	ID        string
	Reason    string
	Path      string
	Timestamp time.Time
}

func (e TaskArchivedEvent) EventType() string { return EventTypeTaskArchived }
func (e TaskArchivedEvent) TaskID() string    { return e.ID }
