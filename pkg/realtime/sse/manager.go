package sse

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fluentstream/fluentstream/pkg/observability/logger"
)

var (
	// ErrTooManyConnections indicates the local connection cap was reached.
	ErrTooManyConnections = errors.New("too many sse connections")
	// ErrInvalidChannel indicates an empty or invalid channel.
	ErrInvalidChannel = errors.New("invalid channel")
)

// Metrics receives stream lifecycle signals. A nil Metrics is valid and
// disables instrumentation.
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	EventPublished(channel string)
	EventDelivered(channel string)
	EventDropped(channel string)
	ReplayServed(count int)
}

// ManagerConfig configures the SSE connection manager.
type ManagerConfig struct {
	InstanceID         string
	MaxConnections     int
	ClientBuffer       int
	ReplayLimit        int
	DropOnBackpressure bool
	HeartbeatInterval  time.Duration
	DefaultRetryMS     int
}

// DefaultManagerConfig returns defaults tuned for API SSE usage.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		InstanceID:         "instance-1",
		MaxConnections:     10000,
		ClientBuffer:       64,
		ReplayLimit:        DefaultReplayLimit,
		DropOnBackpressure: true,
		HeartbeatInterval:  20 * time.Second,
		DefaultRetryMS:     3000,
	}
}

// Manager owns the shared per-process state of the streaming subsystem:
// the registry of active connections and the replay history. All mutating
// operations are serialized behind a mutex; reads take snapshots so no
// caller ever observes a live view of internal maps.
type Manager struct {
	cfg     ManagerConfig
	store   Store
	bus     Bus
	log     logger.Logger
	metrics Metrics

	mu             sync.RWMutex
	connections    map[string]*Client
	byChannel      map[string]map[string]*Client
	busSubscribers map[string]Subscription
}

// Client is one connected SSE subscriber.
type Client struct {
	id          string
	channel     string
	lastEventID string
	remoteAddr  string
	userAgent   string
	connectedAt time.Time
	events      chan Event
	closed      chan struct{}
	closeOnce   sync.Once
}

// ConnectionInfo is a point-in-time snapshot of one connection, used for
// diagnostics and broadcast fan-out, never for synchronization.
type ConnectionInfo struct {
	ID          string    `json:"id"`
	Channel     string    `json:"channel"`
	LastEventID string    `json:"last_event_id,omitempty"`
	RemoteAddr  string    `json:"remote_addr,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	Active      bool      `json:"active"`
}

// SubscriptionRequest describes a new connection: the channel, the resume
// point the client supplied, and informational client metadata.
type SubscriptionRequest struct {
	ClientID    string
	Channel     string
	LastEventID string
	RemoteAddr  string
	UserAgent   string
}

// PublishRequest describes an outgoing SSE event.
type PublishRequest struct {
	Channel string
	Type    string
	Data    []byte
	RetryMS int
}

// NewManager creates an SSE manager. store defaults to an in-memory replay
// buffer; bus is optional (nil means local-only delivery).
func NewManager(cfg ManagerConfig, store Store, bus Bus, log logger.Logger, metrics Metrics) *Manager {
	cfg = normalizeManagerConfig(cfg)
	if store == nil {
		store = NewInMemoryStore(cfg.ReplayLimit)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{
		cfg:            cfg,
		store:          store,
		bus:            bus,
		log:            log,
		metrics:        metrics,
		connections:    make(map[string]*Client),
		byChannel:      make(map[string]map[string]*Client),
		busSubscribers: make(map[string]Subscription),
	}
}

// Config returns the effective (normalized) manager configuration.
func (m *Manager) Config() ManagerConfig { return m.cfg }

// Subscribe registers a new connection and returns the client together
// with the replay events it missed since its Last-Event-ID resume point.
// Re-subscribing with an explicit client id replaces the old connection.
func (m *Manager) Subscribe(ctx context.Context, req SubscriptionRequest) (*Client, []Event, error) {
	channel := strings.TrimSpace(req.Channel)
	if channel == "" {
		return nil, nil, ErrInvalidChannel
	}

	client := &Client{
		id:          chooseClientID(req.ClientID),
		channel:     channel,
		lastEventID: strings.TrimSpace(req.LastEventID),
		remoteAddr:  strings.TrimSpace(req.RemoteAddr),
		userAgent:   strings.TrimSpace(req.UserAgent),
		connectedAt: time.Now().UTC(),
		events:      make(chan Event, m.cfg.ClientBuffer),
		closed:      make(chan struct{}),
	}

	m.mu.Lock()
	if existing := m.connections[client.id]; existing != nil {
		m.removeLocked(existing)
		existing.close()
	}
	if m.cfg.MaxConnections > 0 && len(m.connections) >= m.cfg.MaxConnections {
		m.mu.Unlock()
		return nil, nil, ErrTooManyConnections
	}
	m.connections[client.id] = client
	if m.byChannel[channel] == nil {
		m.byChannel[channel] = make(map[string]*Client)
	}
	m.byChannel[channel][client.id] = client
	needSub := m.bus != nil && m.busSubscribers[channel] == nil
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ConnectionOpened()
	}

	if needSub {
		if err := m.ensureBusSubscription(ctx, channel); err != nil {
			_ = m.Disconnect(client.id)
			return nil, nil, err
		}
	}

	replay, err := m.store.EventsSince(ctx, channel, client.lastEventID, m.cfg.ReplayLimit)
	if err != nil {
		_ = m.Disconnect(client.id)
		return nil, nil, err
	}
	if m.metrics != nil && len(replay) > 0 {
		m.metrics.ReplayServed(len(replay))
	}
	m.log.Debug("sse client subscribed",
		"client_id", client.id,
		"channel", channel,
		"last_event_id", client.lastEventID,
		"replay", len(replay),
	)
	return client, replay, nil
}

// Publish normalizes and records an event, then fans it out: through the
// bus when configured, directly to local subscribers otherwise.
func (m *Manager) Publish(ctx context.Context, req PublishRequest) (Event, error) {
	channel := strings.TrimSpace(req.Channel)
	if channel == "" {
		return Event{}, ErrInvalidChannel
	}
	event := Event{
		Channel: channel,
		Type:    strings.TrimSpace(req.Type),
		Data:    append([]byte(nil), req.Data...),
		RetryMS: req.RetryMS,
	}
	if event.RetryMS <= 0 {
		event.RetryMS = m.cfg.DefaultRetryMS
	}
	event.normalize(time.Now().UTC())

	if err := m.store.Append(ctx, event); err != nil {
		return Event{}, err
	}
	if m.metrics != nil {
		m.metrics.EventPublished(channel)
	}

	if m.bus != nil {
		if err := m.bus.Publish(ctx, event); err != nil {
			return Event{}, err
		}
		return event, nil
	}

	m.deliver(event)
	return event, nil
}

// Disconnect removes and closes one connection. Safe to call repeatedly;
// disconnecting an unknown id is a no-op.
func (m *Manager) Disconnect(clientID string) error {
	m.mu.Lock()
	client := m.connections[clientID]
	if client == nil {
		m.mu.Unlock()
		return nil
	}
	m.removeLocked(client)
	m.mu.Unlock()

	client.close()
	if m.metrics != nil {
		m.metrics.ConnectionClosed()
	}
	m.log.Debug("sse client disconnected", "client_id", clientID, "channel", client.channel)
	return nil
}

// ActiveConnections returns a snapshot of the currently active connections.
func (m *Manager) ActiveConnections() []ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ConnectionInfo, 0, len(m.connections))
	for _, c := range m.connections {
		out = append(out, c.Info())
	}
	return out
}

// Close shuts down the manager, all connections, the bus, and the store.
func (m *Manager) Close() error {
	m.mu.Lock()
	for channel, sub := range m.busSubscribers {
		_ = sub.Close()
		delete(m.busSubscribers, channel)
	}
	clients := make([]*Client, 0, len(m.connections))
	for id, c := range m.connections {
		delete(m.connections, id)
		clients = append(clients, c)
	}
	m.byChannel = make(map[string]map[string]*Client)
	m.mu.Unlock()

	for _, c := range clients {
		c.close()
		if m.metrics != nil {
			m.metrics.ConnectionClosed()
		}
	}

	if m.bus != nil {
		_ = m.bus.Close()
	}
	if m.store != nil {
		_ = m.store.Close()
	}
	return nil
}

// removeLocked detaches a client from the registries. Caller holds m.mu.
func (m *Manager) removeLocked(client *Client) {
	delete(m.connections, client.id)
	channelClients := m.byChannel[client.channel]
	delete(channelClients, client.id)
	if len(channelClients) == 0 {
		delete(m.byChannel, client.channel)
		if sub := m.busSubscribers[client.channel]; sub != nil {
			_ = sub.Close()
			delete(m.busSubscribers, client.channel)
		}
	}
}

func (m *Manager) ensureBusSubscription(ctx context.Context, channel string) error {
	m.mu.RLock()
	existing := m.busSubscribers[channel]
	m.mu.RUnlock()
	if existing != nil {
		return nil
	}

	sub, err := m.bus.Subscribe(ctx, channel, func(event Event) {
		m.deliver(event)
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busSubscribers[channel] == nil {
		m.busSubscribers[channel] = sub
		return nil
	}
	_ = sub.Close()
	return nil
}

func (m *Manager) deliver(event Event) {
	m.mu.RLock()
	clients := m.byChannel[event.Channel]
	snapshot := make([]*Client, 0, len(clients))
	for _, c := range clients {
		snapshot = append(snapshot, c)
	}
	m.mu.RUnlock()

	for _, c := range snapshot {
		if m.enqueue(c, event) {
			if m.metrics != nil {
				m.metrics.EventDelivered(event.Channel)
			}
			continue
		}
		if m.metrics != nil {
			m.metrics.EventDropped(event.Channel)
		}
		if m.cfg.DropOnBackpressure {
			m.log.Warn("sse client dropped on backpressure", "client_id", c.id, "channel", c.channel)
			_ = m.Disconnect(c.id)
		}
	}
}

func (m *Manager) enqueue(c *Client, event Event) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.events <- event:
		return true
	default:
		return false
	}
}

func normalizeManagerConfig(cfg ManagerConfig) ManagerConfig {
	def := DefaultManagerConfig()
	if strings.TrimSpace(cfg.InstanceID) == "" {
		cfg.InstanceID = def.InstanceID
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = def.ClientBuffer
	}
	if cfg.ReplayLimit <= 0 {
		cfg.ReplayLimit = def.ReplayLimit
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.DefaultRetryMS <= 0 {
		cfg.DefaultRetryMS = def.DefaultRetryMS
	}
	return cfg
}

func chooseClientID(value string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	return uuid.NewString()
}

// ID returns the subscriber id.
func (c *Client) ID() string { return c.id }

// Channel returns the subscribed channel.
func (c *Client) Channel() string { return c.channel }

// LastEventID returns the resume point the client supplied on connect.
func (c *Client) LastEventID() string { return c.lastEventID }

// Events returns the receive-only event stream for this client.
func (c *Client) Events() <-chan Event { return c.events }

// Closed returns a channel closed when the client is disconnected.
func (c *Client) Closed() <-chan struct{} { return c.closed }

// Source adapts the client's live event feed to the Source interface.
// It yields events until the client is disconnected (io.EOF) or the
// context ends.
func (c *Client) Source() Source {
	return SourceFunc(func(ctx context.Context) (Event, error) {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-c.closed:
			return Event{}, io.EOF
		case evt := <-c.events:
			return evt, nil
		}
	})
}

// Info returns a snapshot of this connection.
func (c *Client) Info() ConnectionInfo {
	active := true
	select {
	case <-c.closed:
		active = false
	default:
	}
	return ConnectionInfo{
		ID:          c.id,
		Channel:     c.channel,
		LastEventID: c.lastEventID,
		RemoteAddr:  c.remoteAddr,
		UserAgent:   c.userAgent,
		ConnectedAt: c.connectedAt,
		Active:      active,
	}
}

// close marks the client disconnected. Only the signal channel is closed;
// the events channel stays open because publishers may still be selecting
// on it concurrently. Readers stop via Closed(), not via channel closure.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}
