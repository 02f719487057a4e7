package domain

import "errors"

var (
	// ErrNotFound is returned when a referenced client, dialog, or
	// Q/A entry does not exist (closed dialogs are reported as not
	// found to lifecycle mutations).
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a dialog status change
	// violates the lifecycle table. The dialog is left untouched.
	ErrInvalidTransition = errors.New("invalid transition")
)
