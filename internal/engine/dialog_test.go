package engine

import (
	"context"
	"errors"
	"testing"

	"deskbot/internal/bus"
	"deskbot/internal/domain"
)

func newDialogs(t *testing.T) (*Dialogs, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	return NewDialogs(store, bus.NewEventBus(discardLogger()), discardLogger()), store
}

func TestDialogsOpenOrReuse(t *testing.T) {
	d, _ := newDialogs(t)
	ctx := context.Background()

	first, err := d.OpenOrReuse(ctx, 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if first.Status != domain.DialogNew {
		t.Fatalf("expected new dialog, got %q", first.Status)
	}
	if first.PublicID == "" {
		t.Fatal("expected public id")
	}

	second, err := d.OpenOrReuse(ctx, 1)
	if err != nil {
		t.Fatalf("reuse: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected reuse of dialog %d, got %d", first.ID, second.ID)
	}
}

func TestDialogsReopenAfterClose(t *testing.T) {
	d, _ := newDialogs(t)
	ctx := context.Background()

	first, _ := d.OpenOrReuse(ctx, 1)
	if _, err := d.Close(ctx, first.ID, "solved"); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := d.OpenOrReuse(ctx, 1)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a fresh dialog after close, got the closed one")
	}
}

func TestDialogsAssign(t *testing.T) {
	d, _ := newDialogs(t)
	ctx := context.Background()

	dialog, _ := d.OpenOrReuse(ctx, 1)
	assigned, err := d.Assign(ctx, dialog.ID, 42)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assigned.Status != domain.DialogInProgress {
		t.Fatalf("expected in_progress, got %q", assigned.Status)
	}
	if assigned.OperatorID == nil || *assigned.OperatorID != 42 {
		t.Fatalf("operator not recorded: %+v", assigned.OperatorID)
	}

	// Reassignment keeps the status.
	reassigned, err := d.Assign(ctx, dialog.ID, 43)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if reassigned.Status != domain.DialogInProgress || *reassigned.OperatorID != 43 {
		t.Fatalf("unexpected reassignment result %+v", reassigned)
	}
}

func TestDialogsAssignClosedNotFound(t *testing.T) {
	d, _ := newDialogs(t)
	ctx := context.Background()

	dialog, _ := d.OpenOrReuse(ctx, 1)
	d.Close(ctx, dialog.ID, "")

	if _, err := d.Assign(ctx, dialog.ID, 42); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for closed dialog, got %v", err)
	}
}

func TestDialogsCloseIsTerminal(t *testing.T) {
	d, _ := newDialogs(t)
	ctx := context.Background()

	dialog, _ := d.OpenOrReuse(ctx, 1)
	closed, err := d.Close(ctx, dialog.ID, "resolved remotely")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Resolution != "resolved remotely" {
		t.Fatalf("resolution not stamped: %q", closed.Resolution)
	}

	if _, err := d.Close(ctx, dialog.ID, "again"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double close, got %v", err)
	}
}

func TestDialogsUpdateStatusTransitionTable(t *testing.T) {
	d, store := newDialogs(t)
	ctx := context.Background()

	dialog, _ := d.OpenOrReuse(ctx, 1)

	// Same status is a no-op.
	if _, err := d.UpdateStatus(ctx, dialog.ID, domain.DialogNew, ""); err != nil {
		t.Fatalf("no-op transition: %v", err)
	}

	if _, err := d.UpdateStatus(ctx, dialog.ID, "weird", ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected rejection of unknown status, got %v", err)
	}

	if _, err := d.UpdateStatus(ctx, dialog.ID, domain.DialogInProgress, ""); err != nil {
		t.Fatalf("new -> in_progress: %v", err)
	}
	if _, err := d.UpdateStatus(ctx, dialog.ID, domain.DialogNew, ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected in_progress -> new to fail, got %v", err)
	}
	if _, err := d.UpdateStatus(ctx, dialog.ID, domain.DialogClosed, "done"); err != nil {
		t.Fatalf("in_progress -> closed: %v", err)
	}

	got, _ := store.GetDialog(ctx, dialog.ID)
	if got.Status != domain.DialogClosed || got.Resolution != "done" {
		t.Fatalf("closed state not persisted: %+v", got)
	}

	// Closed is terminal: no status, including closed itself, is
	// accepted afterwards, and the resolution never changes.
	for _, next := range []domain.DialogStatus{domain.DialogNew, domain.DialogInProgress, domain.DialogClosed} {
		if _, err := d.UpdateStatus(ctx, dialog.ID, next, "rewritten"); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("expected closed -> %s to fail, got %v", next, err)
		}
	}
	got, _ = store.GetDialog(ctx, dialog.ID)
	if got.Resolution != "done" {
		t.Fatalf("resolution changed after rejected transition: %q", got.Resolution)
	}
}

func TestDialogsUnknownNotFound(t *testing.T) {
	d, _ := newDialogs(t)
	if _, err := d.Close(context.Background(), 999, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
