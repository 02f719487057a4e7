package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"deskbot/internal/bus"
	"deskbot/internal/domain"
	"deskbot/internal/flow"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore is an in-memory Store for engine tests.
type fakeStore struct {
	mu        sync.Mutex
	clients   map[int64]domain.Client
	messages  []domain.Message
	dialogs   map[int64]domain.Dialog
	qa        map[int64]domain.QAEntry
	operators map[int64]domain.Operator
	nextID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clients:   make(map[int64]domain.Client),
		dialogs:   make(map[int64]domain.Dialog),
		qa:        make(map[int64]domain.QAEntry),
		operators: make(map[int64]domain.Operator),
	}
}

func (s *fakeStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *fakeStore) CreateClient(_ context.Context, c domain.Client) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	s.clients[c.ID] = c
	return c.ID, nil
}

func (s *fakeStore) GetClient(_ context.Context, id int64) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (s *fakeStore) GetClientByPlatformID(_ context.Context, platformID string) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if c.PlatformID == platformID {
			return &c, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) UpdateClientName(_ context.Context, id int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.Name = name
	s.clients[id] = c
	return nil
}

func (s *fakeStore) SetClientBlocked(_ context.Context, id int64, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.Blocked = blocked
	s.clients[id] = c
	return nil
}

func (s *fakeStore) ListClients(_ context.Context, limit int) ([]domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) AppendMessage(_ context.Context, m domain.Message) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.id()
	s.messages = append(s.messages, m)
	return m.ID, nil
}

func (s *fakeStore) MarkUndelivered(_ context.Context, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].Delivered = false
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *fakeStore) ListMessages(_ context.Context, clientID int64, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for _, m := range s.messages {
		if m.ClientID == clientID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeStore) CreateDialog(_ context.Context, d domain.Dialog) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = s.id()
	s.dialogs[d.ID] = d
	return d.ID, nil
}

func (s *fakeStore) GetDialog(_ context.Context, id int64) (*domain.Dialog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.dialogs[id]; ok {
		return &d, nil
	}
	return nil, nil
}

func (s *fakeStore) GetOpenDialog(_ context.Context, clientID int64) (*domain.Dialog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.dialogs {
		if d.ClientID == clientID && d.Status != domain.DialogClosed {
			return &d, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) UpdateDialog(_ context.Context, d domain.Dialog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dialogs[d.ID]; !ok {
		return domain.ErrNotFound
	}
	s.dialogs[d.ID] = d
	return nil
}

func (s *fakeStore) ListDialogs(_ context.Context, status domain.DialogStatus, operatorID int64, limit int) ([]domain.Dialog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Dialog
	for _, d := range s.dialogs {
		if status != "" && d.Status != status {
			continue
		}
		if operatorID != 0 && (d.OperatorID == nil || *d.OperatorID != operatorID) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) ListActiveQA(_ context.Context) ([]domain.QAEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.QAEntry
	for _, e := range s.qa {
		if e.Active {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) ListQA(_ context.Context) ([]domain.QAEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.QAEntry, 0, len(s.qa))
	for _, e := range s.qa {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) CreateQA(_ context.Context, e domain.QAEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.id()
	s.qa[e.ID] = e
	return e.ID, nil
}

func (s *fakeStore) UpdateQA(_ context.Context, e domain.QAEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.qa[e.ID]; !ok {
		return domain.ErrNotFound
	}
	s.qa[e.ID] = e
	return nil
}

func (s *fakeStore) DeleteQA(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.qa[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.qa, id)
	return nil
}

func (s *fakeStore) GetOperator(_ context.Context, id int64) (*domain.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op, ok := s.operators[id]; ok {
		return &op, nil
	}
	return nil, nil
}

func (s *fakeStore) GetOperatorByLogin(_ context.Context, login string) (*domain.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range s.operators {
		if op.Login == login {
			return &op, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateOperator(_ context.Context, op domain.Operator) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op.ID = s.id()
	s.operators[op.ID] = op
	return op.ID, nil
}

func (s *fakeStore) Close() error { return nil }

// fakeOutbound records delivered texts and can be set to fail.
type fakeOutbound struct {
	mu        sync.Mutex
	delivered []string
	fail      bool
}

func (f *fakeOutbound) Deliver(_ context.Context, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("network down")
	}
	f.delivered = append(f.delivered, text)
	return nil
}

func (f *fakeOutbound) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.delivered) == 0 {
		return ""
	}
	return f.delivered[len(f.delivered)-1]
}

func (f *fakeOutbound) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

// testEnv wires a Router with in-memory everything.
type testEnv struct {
	store    *fakeStore
	sessions *SessionStore
	dialogs  *Dialogs
	matcher  *Matcher
	flows    *flow.Registry
	outbound *fakeOutbound
	events   *bus.EventBus
	router   *Router
}

func newTestEnv(ttl time.Duration) *testEnv {
	logger := discardLogger()
	env := &testEnv{
		store:    newFakeStore(),
		sessions: NewSessionStore(ttl, logger),
		matcher:  NewMatcher(logger),
		flows:    flow.NewRegistry(logger),
		outbound: &fakeOutbound{},
		events:   bus.NewEventBus(logger),
	}
	env.dialogs = NewDialogs(env.store, env.events, logger)
	env.router = NewRouter(RouterConfig{
		Store:        env.store,
		Sessions:     env.sessions,
		Dialogs:      env.dialogs,
		Matcher:      env.matcher,
		Flows:        env.flows,
		Interpreter:  NewInterpreter(logger),
		Outbound:     env.outbound,
		Events:       env.events,
		Logger:       logger,
		DedupeWindow: time.Minute,
	})
	return env
}

func (e *testEnv) addClient(platformID, name string) int64 {
	id, err := e.store.CreateClient(context.Background(), domain.Client{
		PlatformID: platformID,
		Name:       name,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		panic(err)
	}
	return id
}
