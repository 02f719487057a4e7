package domain

import "context"

// Store is the persistence port for everything the engine reads and
// writes durably. The engine needs only point lookups, point writes,
// and "list active" queries; nothing depends on SQL specifics.
type Store interface {
	// Clients
	CreateClient(ctx context.Context, c Client) (int64, error)
	GetClient(ctx context.Context, id int64) (*Client, error)
	GetClientByPlatformID(ctx context.Context, platformID string) (*Client, error)
	UpdateClientName(ctx context.Context, id int64, name string) error
	SetClientBlocked(ctx context.Context, id int64, blocked bool) error
	ListClients(ctx context.Context, limit int) ([]Client, error)

	// Messages (append-only)
	AppendMessage(ctx context.Context, m Message) (int64, error)
	MarkUndelivered(ctx context.Context, messageID int64) error
	ListMessages(ctx context.Context, clientID int64, limit int) ([]Message, error)

	// Dialogs
	CreateDialog(ctx context.Context, d Dialog) (int64, error)
	GetDialog(ctx context.Context, id int64) (*Dialog, error)
	GetOpenDialog(ctx context.Context, clientID int64) (*Dialog, error)
	UpdateDialog(ctx context.Context, d Dialog) error
	ListDialogs(ctx context.Context, status DialogStatus, operatorID int64, limit int) ([]Dialog, error)

	// Static Q/A (dashboard-managed, engine read-only)
	ListActiveQA(ctx context.Context) ([]QAEntry, error)
	ListQA(ctx context.Context) ([]QAEntry, error)
	CreateQA(ctx context.Context, e QAEntry) (int64, error)
	UpdateQA(ctx context.Context, e QAEntry) error
	DeleteQA(ctx context.Context, id int64) error

	// Operators (owned by the auth subsystem, read-only here)
	GetOperator(ctx context.Context, id int64) (*Operator, error)
	GetOperatorByLogin(ctx context.Context, login string) (*Operator, error)
	CreateOperator(ctx context.Context, op Operator) (int64, error)

	Close() error
}
