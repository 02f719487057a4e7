package store

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"deskbot/internal/domain"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	s, err := NewSQLiteStore(dbPath, logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestClientRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, err := s.CreateClient(ctx, domain.Client{PlatformID: "tg:100", Name: "Ann"})
	if err != nil {
		t.Fatalf("CreateClient failed: %v", err)
	}

	got, err := s.GetClient(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.PlatformID != "tg:100" || got.Name != "Ann" || got.Blocked {
		t.Fatalf("unexpected client %+v", got)
	}

	byPlatform, err := s.GetClientByPlatformID(ctx, "tg:100")
	if err != nil {
		t.Fatal(err)
	}
	if byPlatform == nil || byPlatform.ID != id {
		t.Fatalf("platform lookup mismatch: %+v", byPlatform)
	}

	if got, _ := s.GetClient(ctx, 999); got != nil {
		t.Fatalf("expected nil for missing client, got %+v", got)
	}
}

func TestClientBlockAndRename(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, _ := s.CreateClient(ctx, domain.Client{PlatformID: "tg:1", Name: "Old"})

	if err := s.UpdateClientName(ctx, id, "New"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetClientBlocked(ctx, id, true); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetClient(ctx, id)
	if got.Name != "New" || !got.Blocked {
		t.Fatalf("updates not persisted: %+v", got)
	}
}

func TestMessagesAppendOnly(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	clientID, _ := s.CreateClient(ctx, domain.Client{PlatformID: "tg:1"})
	opID := int64(7)

	base := time.Now().Add(-time.Minute)
	in, err := s.AppendMessage(ctx, domain.Message{
		ClientID: clientID, Direction: domain.DirectionIncoming, Body: "hi",
		Delivered: true, CreatedAt: base,
	})
	if err != nil {
		t.Fatal(err)
	}
	out, err := s.AppendMessage(ctx, domain.Message{
		ClientID: clientID, Direction: domain.DirectionOutgoing, Body: "hello",
		OperatorID: &opID, Delivered: true, CreatedAt: base.Add(time.Second),
	})
	if err != nil {
		t.Fatal(err)
	}
	if out <= in {
		t.Fatalf("ids not monotonic: %d then %d", in, out)
	}

	msgs, err := s.ListMessages(ctx, clientID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Body != "hi" || msgs[1].Body != "hello" {
		t.Fatalf("wrong order: %q %q", msgs[0].Body, msgs[1].Body)
	}
	if msgs[0].OperatorID != nil {
		t.Fatal("incoming message has an operator")
	}
	if msgs[1].OperatorID == nil || *msgs[1].OperatorID != 7 {
		t.Fatalf("operator authorship lost: %+v", msgs[1].OperatorID)
	}
}

func TestMarkUndelivered(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	clientID, _ := s.CreateClient(ctx, domain.Client{PlatformID: "tg:1"})
	id, _ := s.AppendMessage(ctx, domain.Message{
		ClientID: clientID, Direction: domain.DirectionOutgoing, Body: "x", Delivered: true,
	})

	if err := s.MarkUndelivered(ctx, id); err != nil {
		t.Fatal(err)
	}
	msgs, _ := s.ListMessages(ctx, clientID, 0)
	if msgs[0].Delivered {
		t.Fatal("message still marked delivered")
	}

	if err := s.MarkUndelivered(ctx, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDialogRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	clientID, _ := s.CreateClient(ctx, domain.Client{PlatformID: "tg:1"})

	id, err := s.CreateDialog(ctx, domain.Dialog{
		PublicID: "pub-1", ClientID: clientID, Status: domain.DialogNew,
	})
	if err != nil {
		t.Fatal(err)
	}

	open, err := s.GetOpenDialog(ctx, clientID)
	if err != nil {
		t.Fatal(err)
	}
	if open == nil || open.ID != id || open.Status != domain.DialogNew {
		t.Fatalf("unexpected open dialog %+v", open)
	}

	opID := int64(3)
	open.Status = domain.DialogInProgress
	open.OperatorID = &opID
	open.UpdatedAt = time.Now()
	if err := s.UpdateDialog(ctx, *open); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetDialog(ctx, id)
	if got.Status != domain.DialogInProgress || got.OperatorID == nil || *got.OperatorID != 3 {
		t.Fatalf("update not persisted: %+v", got)
	}

	got.Status = domain.DialogClosed
	got.Resolution = "solved"
	if err := s.UpdateDialog(ctx, *got); err != nil {
		t.Fatal(err)
	}
	if open, _ := s.GetOpenDialog(ctx, clientID); open != nil {
		t.Fatalf("closed dialog still reported open: %+v", open)
	}
}

func TestListDialogsFilters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	clientID, _ := s.CreateClient(ctx, domain.Client{PlatformID: "tg:1"})
	opID := int64(5)

	s.CreateDialog(ctx, domain.Dialog{PublicID: "a", ClientID: clientID, Status: domain.DialogNew})
	s.CreateDialog(ctx, domain.Dialog{PublicID: "b", ClientID: clientID, Status: domain.DialogClosed})
	s.CreateDialog(ctx, domain.Dialog{PublicID: "c", ClientID: clientID, Status: domain.DialogInProgress, OperatorID: &opID})

	newOnes, err := s.ListDialogs(ctx, domain.DialogNew, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(newOnes) != 1 || newOnes[0].PublicID != "a" {
		t.Fatalf("status filter broken: %+v", newOnes)
	}

	mine, err := s.ListDialogs(ctx, "", 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].PublicID != "c" {
		t.Fatalf("operator filter broken: %+v", mine)
	}

	all, _ := s.ListDialogs(ctx, "", 0, 0)
	if len(all) != 3 {
		t.Fatalf("expected 3 dialogs, got %d", len(all))
	}
}

func TestQACRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, err := s.CreateQA(ctx, domain.QAEntry{Question: "hours", Answer: "9-17", Warning: "holidays vary", Active: true})
	if err != nil {
		t.Fatal(err)
	}
	s.CreateQA(ctx, domain.QAEntry{Question: "old", Answer: "gone", Active: false})

	active, err := s.ListActiveQA(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].Warning != "holidays vary" {
		t.Fatalf("unexpected active entries %+v", active)
	}

	all, _ := s.ListQA(ctx)
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}

	entry := active[0]
	entry.Answer = "10-18"
	if err := s.UpdateQA(ctx, entry); err != nil {
		t.Fatal(err)
	}
	active, _ = s.ListActiveQA(ctx)
	if active[0].Answer != "10-18" {
		t.Fatalf("update lost: %+v", active[0])
	}

	if err := s.DeleteQA(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteQA(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestOperators(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, err := s.CreateOperator(ctx, domain.Operator{Login: "sam", Name: "Sam", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatal(err)
	}

	byID, _ := s.GetOperator(ctx, id)
	if byID == nil || byID.Role != domain.RoleAdmin {
		t.Fatalf("unexpected operator %+v", byID)
	}

	byLogin, _ := s.GetOperatorByLogin(ctx, "sam")
	if byLogin == nil || byLogin.ID != id {
		t.Fatalf("login lookup broken: %+v", byLogin)
	}

	if op, _ := s.GetOperatorByLogin(ctx, "nobody"); op != nil {
		t.Fatalf("expected nil for unknown login, got %+v", op)
	}

	if _, err := s.CreateOperator(ctx, domain.Operator{Login: "sam"}); err == nil {
		t.Fatal("expected unique login violation")
	}
}

func TestMigrateIdempotent(t *testing.T) {
	s := testStore(t)
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}
