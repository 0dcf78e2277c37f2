// Package websocket pushes live streaming session snapshots to browser
// clients over gorilla websockets.
package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/peakstream/internal/adapter/metrics"
	"github.com/pscheid92/peakstream/internal/domain"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second

	defaultMaxClients = 1000
)

var (
	ErrFeedFull    = errors.New("feed client limit reached")
	errFeedStopped = errors.New("feed stopped")
)

// SessionSource is the stream manager as seen by the feed.
type SessionSource interface {
	GetActiveStreams() []domain.StreamSession
}

type feedMessage struct {
	Type      string                 `json:"type"`
	Streams   []domain.StreamSession `json:"streams"`
	Timestamp time.Time              `json:"timestamp"`
}

type feedCmd interface{ isFeedCmd() }

type baseFeedCmd struct{}

func (baseFeedCmd) isFeedCmd() {}

type registerCmd struct {
	baseFeedCmd
	conn  *websocket.Conn
	errCh chan error
}

type unregisterCmd struct {
	baseFeedCmd
	conn *websocket.Conn
}

type countCmd struct {
	baseFeedCmd
	replyCh chan int
}

type stopCmd struct {
	baseFeedCmd
}

// Feed owns every connected client. A single goroutine handles registration
// and the publish tick, so the client map needs no lock.
type Feed struct {
	cmdCh      chan feedCmd
	clock      clockwork.Clock
	source     SessionSource
	clients    map[*websocket.Conn]*clientWriter
	interval   time.Duration
	maxClients int
	metrics    *metrics.FeedMetrics
	upgrader   websocket.Upgrader
	done       chan struct{}
}

type FeedOption func(*Feed)

func WithFeedMetrics(m *metrics.FeedMetrics) FeedOption {
	return func(f *Feed) { f.metrics = m }
}

func WithMaxClients(n int) FeedOption {
	return func(f *Feed) { f.maxClients = n }
}

// WithCheckOrigin sets the upgrade origin check, usually NewCheckOrigin.
func WithCheckOrigin(check func(r *http.Request) bool) FeedOption {
	return func(f *Feed) { f.upgrader.CheckOrigin = check }
}

// NewFeed starts the publish loop. Every interval the active sessions are
// read from source and sent to all clients.
func NewFeed(source SessionSource, clock clockwork.Clock, interval time.Duration, opts ...FeedOption) *Feed {
	f := &Feed{
		cmdCh:      make(chan feedCmd, 256),
		clock:      clock,
		source:     source,
		clients:    make(map[*websocket.Conn]*clientWriter),
		interval:   interval,
		maxClients: defaultMaxClients,
		upgrader:   websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	go f.run()
	return f
}

// ServeHTTP upgrades the request and keeps the connection registered until
// the client goes away.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "Feed upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	if err := f.Register(conn); err != nil {
		slog.WarnContext(r.Context(), "Feed client rejected", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	go func() {
		defer f.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Register adds a client and sends it the current snapshot right away.
func (f *Feed) Register(conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	select {
	case f.cmdCh <- registerCmd{conn: conn, errCh: errCh}:
	case <-f.done:
		_ = conn.Close()
		return errFeedStopped
	}

	timer := f.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-f.done:
		_ = conn.Close()
		return errFeedStopped
	case <-timer.Chan():
		// The loop may still add the client later; queue its removal behind
		// the registration.
		_ = conn.Close()
		f.Unregister(conn)
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

func (f *Feed) Unregister(conn *websocket.Conn) {
	select {
	case f.cmdCh <- unregisterCmd{conn: conn}:
	case <-f.done:
	}
}

// ClientCount returns the number of connected clients, or -1 on timeout.
func (f *Feed) ClientCount() int {
	replyCh := make(chan int, 1)
	select {
	case f.cmdCh <- countCmd{replyCh: replyCh}:
	case <-f.done:
		return 0
	}

	timer := f.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case n := <-replyCh:
		return n
	case <-f.done:
		return 0
	case <-timer.Chan():
		slog.Warn("Feed client count timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every client and waits for the loop to exit.
func (f *Feed) Stop() {
	select {
	case f.cmdCh <- stopCmd{}:
	case <-f.done:
		return
	}

	timeout := f.clock.NewTimer(stopTimeout)
	defer timeout.Stop()

	select {
	case <-f.done:
		slog.Info("Session feed stopped")
	case <-timeout.Chan():
		slog.Warn("Session feed stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (f *Feed) run() {
	defer close(f.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Session feed panic recovered", "panic", r)
			f.closeAll("feed panic")
		}
	}()

	ticker := f.clock.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-f.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				f.handleRegister(c)
			case unregisterCmd:
				f.handleUnregister(c.conn)
			case countCmd:
				c.replyCh <- len(f.clients)
			case stopCmd:
				slog.Info("Session feed shutting down", "clients", len(f.clients))
				f.closeAll("Server shutting down")
				return
			}
		case <-ticker.Chan():
			f.publish()
		}
	}
}

func (f *Feed) handleRegister(c registerCmd) {
	if len(f.clients) >= f.maxClients {
		_ = c.conn.Close()
		c.errCh <- fmt.Errorf("%w (%d)", ErrFeedFull, f.maxClients)
		return
	}

	cw := newClientWriter(c.conn, f.clock)
	f.clients[c.conn] = cw
	if f.metrics != nil {
		f.metrics.ActiveConnections.Inc()
	}
	slog.Debug("Feed client registered", "clients", len(f.clients))

	if data, err := f.snapshot(); err == nil {
		cw.send <- data
	}
	c.errCh <- nil
}

func (f *Feed) handleUnregister(conn *websocket.Conn) {
	cw, ok := f.clients[conn]
	if !ok {
		return
	}
	cw.stop()
	delete(f.clients, conn)
	if f.metrics != nil {
		f.metrics.ActiveConnections.Dec()
	}
	slog.Debug("Feed client unregistered", "clients", len(f.clients))
}

func (f *Feed) publish() {
	if len(f.clients) == 0 {
		return
	}

	data, err := f.snapshot()
	if err != nil {
		slog.Error("Failed to marshal session feed message", "error", err)
		return
	}

	var slow []*websocket.Conn
	for conn, cw := range f.clients {
		select {
		case cw.send <- data:
		default:
			slow = append(slow, conn)
		}
	}

	for _, conn := range slow {
		slog.Warn("Disconnecting slow feed client", "remote_addr", conn.RemoteAddr().String())
		if f.metrics != nil {
			f.metrics.SlowClientsDropped.Inc()
		}
		f.handleUnregister(conn)
	}

	if f.metrics != nil {
		f.metrics.MessagesPublished.Inc()
	}
}

func (f *Feed) snapshot() ([]byte, error) {
	streams := f.source.GetActiveStreams()
	if streams == nil {
		streams = []domain.StreamSession{}
	}
	return json.Marshal(feedMessage{Type: "streams", Streams: streams, Timestamp: f.clock.Now().UTC()})
}

func (f *Feed) closeAll(reason string) {
	for conn, cw := range f.clients {
		cw.stopGraceful(reason)
		delete(f.clients, conn)
	}
	if f.metrics != nil {
		f.metrics.ActiveConnections.Set(0)
	}
}
