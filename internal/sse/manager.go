package sse

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shelflifeapp/shelflife/internal/id"
	"github.com/shelflifeapp/shelflife/internal/store"
)

const (
	queueSize       = 1000
	clientQueueSize = 100
	heartbeatEvery  = 30 * time.Second
)

// Client is one open event stream.
type Client struct {
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
	ID          string
	// UserID scopes the stream to one user's shelf. Empty receives every user's events.
	UserID string
}

// wants reports whether e belongs on c's stream.
func (c *Client) wants(e Event) bool {
	return e.UserID == "" || c.UserID == "" || e.UserID == c.UserID
}

// Manager fans product, journey and reminder events out to open streams.
// It implements store.EventEmitter, so committed store changes reach clients
// without the store knowing about HTTP.
type Manager struct {
	logger    *slog.Logger
	queue     chan Event
	heartbeat time.Duration
	running   sync.WaitGroup

	clientsMu sync.RWMutex
	clients   map[string]*Client

	// closedMu guards closed and the close of queue against Emit.
	closedMu sync.RWMutex
	closed   bool
}

// NewManager returns a Manager. Call Start to begin delivery.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:    logger,
		queue:     make(chan Event, queueSize),
		heartbeat: heartbeatEvery,
		clients:   make(map[string]*Client),
	}
}

// Start delivers queued events until ctx is cancelled or the queue is closed.
func (m *Manager) Start(ctx context.Context) {
	m.running.Add(1)
	defer m.running.Done()

	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.dropAll()
			return
		case <-ticker.C:
			m.deliver(NewHeartbeatEvent())
		case e, ok := <-m.queue:
			if !ok {
				return
			}
			m.deliver(e)
		}
	}
}

// Shutdown stops accepting events and delivers whatever is still queued,
// giving up when ctx expires. Every client stream is then closed.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closedMu.Lock()
	if m.closed {
		m.closedMu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.closedMu.Unlock()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for e := range m.queue {
			m.deliver(e)
		}
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		m.logger.Warn("event queue not drained before shutdown deadline")
	}

	m.running.Wait()
	m.dropAll()
	m.logger.Info("event streams closed")
	return nil
}

// deliver hands e to every interested client. A client whose buffer is full
// misses the event rather than stalling the others.
func (m *Manager) deliver(e Event) {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()

	sent, skipped := 0, 0
	for _, c := range m.clients {
		if !c.wants(e) {
			continue
		}
		select {
		case c.EventChan <- e:
			sent++
		default:
			skipped++
			m.logger.Warn("client too slow, event skipped",
				slog.String("client_id", c.ID),
				slog.String("event_type", string(e.Type)))
		}
	}

	if e.Type != EventHeartbeat {
		m.logger.Debug("event delivered",
			slog.String("event_type", string(e.Type)),
			slog.String("user_id", e.UserID),
			slog.Int("sent", sent),
			slog.Int("skipped", skipped))
	}
}

// Connect opens a stream for userID. An empty userID sees all users' events.
func (m *Manager) Connect(userID string) (*Client, error) {
	clientID, err := id.Generate("sse")
	if err != nil {
		return nil, err
	}

	c := &Client{
		ConnectedAt: time.Now(),
		EventChan:   make(chan Event, clientQueueSize),
		Done:        make(chan struct{}),
		ID:          clientID,
		UserID:      userID,
	}

	m.clientsMu.Lock()
	m.clients[c.ID] = c
	open := len(m.clients)
	m.clientsMu.Unlock()

	m.logger.Info("event stream opened",
		slog.String("client_id", c.ID),
		slog.String("user_id", userID),
		slog.Int("open_streams", open))
	return c, nil
}

// Disconnect closes the stream with clientID. Unknown ids are ignored.
func (m *Manager) Disconnect(clientID string) {
	m.clientsMu.Lock()
	c, ok := m.clients[clientID]
	if ok {
		delete(m.clients, clientID)
	}
	open := len(m.clients)
	m.clientsMu.Unlock()

	if !ok {
		return
	}
	closeClient(c)

	m.logger.Info("event stream closed",
		slog.String("client_id", clientID),
		slog.Duration("open_for", time.Since(c.ConnectedAt)),
		slog.Int("open_streams", open))
}

// Emit queues an Event or a store.Change for delivery without blocking.
// Events emitted after Shutdown are discarded.
func (m *Manager) Emit(event any) {
	var e Event
	switch v := event.(type) {
	case Event:
		e = v
	case store.Change:
		e = FromChange(v)
	default:
		m.logger.Error("unsupported event value", slog.Any("event", event))
		return
	}

	m.closedMu.RLock()
	defer m.closedMu.RUnlock()
	if m.closed {
		return
	}

	select {
	case m.queue <- e:
	default:
		m.logger.Error("event queue full, event discarded",
			slog.String("event_type", string(e.Type)))
	}
}

// EmitToUser queues e for userID's streams only.
func (m *Manager) EmitToUser(userID string, e Event) {
	e.UserID = userID
	m.Emit(e)
}

// ClientCount returns the number of open streams.
func (m *Manager) ClientCount() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

func (m *Manager) dropAll() {
	m.clientsMu.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.clientsMu.Unlock()

	for _, c := range clients {
		closeClient(c)
	}
}

func closeClient(c *Client) {
	close(c.Done)
	close(c.EventChan)
}
