package models

import "time"

// UserSyncedEvent is published after a successful sync.
type UserSyncedEvent struct {
	SubjectID string    `json:"subjectId"`
	Email     string    `json:"email"`
	Provider  string    `json:"provider"`
	Providers []string  `json:"providers"`
	Created   bool      `json:"created"`
	At        time.Time `json:"at"`
}
