package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"deskbot/internal/bus"
	"deskbot/internal/domain"

	"github.com/google/uuid"
)

// Dialogs owns the lifecycle of support tickets: new → in_progress →
// closed. Closed is terminal and immutable for audit integrity;
// reopening a case means a fresh dialog. All mutations go through this
// manager so the transition table is enforced in one place.
type Dialogs struct {
	store  domain.Store
	events *bus.EventBus
	logger *slog.Logger
}

func NewDialogs(store domain.Store, events *bus.EventBus, logger *slog.Logger) *Dialogs {
	return &Dialogs{store: store, events: events, logger: logger}
}

// OpenOrReuse returns the client's existing non-closed dialog, or
// creates a new one. A client never has two simultaneously open dialogs.
func (d *Dialogs) OpenOrReuse(ctx context.Context, clientID int64) (*domain.Dialog, error) {
	existing, err := d.store.GetOpenDialog(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("lookup open dialog: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now()
	dialog := domain.Dialog{
		PublicID:  uuid.NewString(),
		ClientID:  clientID,
		Status:    domain.DialogNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := d.store.CreateDialog(ctx, dialog)
	if err != nil {
		return nil, fmt.Errorf("create dialog: %w", err)
	}
	dialog.ID = id

	d.logger.Info("dialog opened", "dialog_id", id, "client_id", clientID)
	d.events.Emit(bus.Event{
		Type:    bus.EventDialogOpened,
		Source:  "dialogs",
		Payload: map[string]any{"dialog_id": id, "client_id": clientID},
	})
	return &dialog, nil
}

// Assign sets the responding operator. A new dialog moves to
// in_progress; an in_progress dialog keeps its status but may be
// reassigned. Closed dialogs are reported as not found.
func (d *Dialogs) Assign(ctx context.Context, dialogID, operatorID int64) (*domain.Dialog, error) {
	dialog, err := d.store.GetDialog(ctx, dialogID)
	if err != nil {
		return nil, err
	}
	if dialog == nil || dialog.Status == domain.DialogClosed {
		return nil, domain.ErrNotFound
	}

	if dialog.Status == domain.DialogNew {
		dialog.Status = domain.DialogInProgress
	}
	dialog.OperatorID = &operatorID
	dialog.UpdatedAt = time.Now()

	if err := d.store.UpdateDialog(ctx, *dialog); err != nil {
		return nil, fmt.Errorf("update dialog: %w", err)
	}

	d.events.Emit(bus.Event{
		Type:    bus.EventDialogAssigned,
		Source:  "dialogs",
		Payload: map[string]any{"dialog_id": dialogID, "operator_id": operatorID},
	})
	return dialog, nil
}

// Close moves the dialog to closed and stamps the resolution (which
// may be empty). Closing an already closed dialog is an invalid
// transition.
func (d *Dialogs) Close(ctx context.Context, dialogID int64, resolution string) (*domain.Dialog, error) {
	dialog, err := d.store.GetDialog(ctx, dialogID)
	if err != nil {
		return nil, err
	}
	if dialog == nil {
		return nil, domain.ErrNotFound
	}
	if dialog.Status == domain.DialogClosed {
		return nil, fmt.Errorf("dialog %d already closed: %w", dialogID, domain.ErrInvalidTransition)
	}

	dialog.Status = domain.DialogClosed
	dialog.Resolution = resolution
	dialog.UpdatedAt = time.Now()

	if err := d.store.UpdateDialog(ctx, *dialog); err != nil {
		return nil, fmt.Errorf("update dialog: %w", err)
	}

	d.logger.Info("dialog closed", "dialog_id", dialogID)
	d.events.Emit(bus.Event{
		Type:    bus.EventDialogClosed,
		Source:  "dialogs",
		Payload: map[string]any{"dialog_id": dialogID},
	})
	return dialog, nil
}

// UpdateStatus is the generic entry point for dashboard-requested
// transitions. Anything violating the lifecycle table fails with
// ErrInvalidTransition rather than silently succeeding; requesting the
// current status of an open dialog is a no-op, a closed dialog accepts
// nothing.
func (d *Dialogs) UpdateStatus(ctx context.Context, dialogID int64, status domain.DialogStatus, resolution string) (*domain.Dialog, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", status, domain.ErrInvalidTransition)
	}

	dialog, err := d.store.GetDialog(ctx, dialogID)
	if err != nil {
		return nil, err
	}
	if dialog == nil {
		return nil, domain.ErrNotFound
	}
	if dialog.Status == domain.DialogClosed {
		return nil, fmt.Errorf("dialog %d already closed: %w", dialogID, domain.ErrInvalidTransition)
	}
	if dialog.Status == status {
		return dialog, nil
	}
	if !domain.CanTransition(dialog.Status, status) {
		return nil, fmt.Errorf("%s -> %s: %w", dialog.Status, status, domain.ErrInvalidTransition)
	}

	dialog.Status = status
	if status == domain.DialogClosed {
		dialog.Resolution = resolution
	}
	dialog.UpdatedAt = time.Now()

	if err := d.store.UpdateDialog(ctx, *dialog); err != nil {
		return nil, fmt.Errorf("update dialog: %w", err)
	}

	if status == domain.DialogClosed {
		d.events.Emit(bus.Event{
			Type:    bus.EventDialogClosed,
			Source:  "dialogs",
			Payload: map[string]any{"dialog_id": dialogID},
		})
	}
	return dialog, nil
}
