package domain

import "time"

type DialogStatus string

const (
	DialogNew        DialogStatus = "new"
	DialogInProgress DialogStatus = "in_progress"
	DialogClosed     DialogStatus = "closed"
)

// Valid reports whether s is a known dialog status.
func (s DialogStatus) Valid() bool {
	switch s {
	case DialogNew, DialogInProgress, DialogClosed:
		return true
	}
	return false
}

// CanTransition reports whether the dialog lifecycle permits moving
// from one status to another. Closed is terminal; a dialog never
// regresses to new once an operator has engaged.
func CanTransition(from, to DialogStatus) bool {
	switch from {
	case DialogNew:
		return to == DialogInProgress || to == DialogClosed
	case DialogInProgress:
		return to == DialogClosed
	}
	return false
}

// Dialog is a client's support case. A client has at most one open
// (non-closed) dialog at a time; reopening means creating a fresh one.
type Dialog struct {
	ID         int64        `json:"id"`
	PublicID   string       `json:"public_id"`
	ClientID   int64        `json:"client_id"`
	Status     DialogStatus `json:"status"`
	Resolution string       `json:"resolution,omitempty"`
	OperatorID *int64       `json:"operator_id,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Open reports whether the dialog still accepts operator activity.
func (d *Dialog) Open() bool {
	return d.Status != DialogClosed
}
