package models

import "time"

// Direction is the way a document moved.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
)

// Outcome is the result of one transfer attempt.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Transfer is one journaled push or pull of a single document.
type Transfer struct {
	ID        int64     `json:"id,omitempty"`
	RunID     string    `json:"run_id"`
	Direction Direction `json:"direction"`
	ItemKey   string    `json:"item_key,omitempty"`
	Document  string    `json:"document"`
	Outcome   Outcome   `json:"outcome"`
	Step      string    `json:"step,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Run summarizes one invocation of the sync driver.
type Run struct {
	ID         string     `json:"id"`
	Mode       string     `json:"mode"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Pushed     int        `json:"pushed"`
	Pulled     int        `json:"pulled"`
	Failed     int        `json:"failed"`
}
