package domain

import "context"

const (
	EventSuccess  = "success"
	EventDegraded = "degraded"
	EventFailure  = "failure"
)

// Event summarises one finished backup run for notifiers.
type Event struct {
	Status        string   `json:"status"`
	Producer      string   `json:"producer"`
	Artifact      string   `json:"artifact,omitempty"`
	Remote        string   `json:"remote,omitempty"`
	Deleted       []string `json:"deleted,omitempty"`
	FailedDeletes int      `json:"failed_deletes,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	Error         string   `json:"error,omitempty"`
	Duration      string   `json:"duration"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
