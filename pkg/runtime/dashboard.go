// rewrite/pkg/runtime/dashboard.go

package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rgehrsitz/rewrite/pkg/logging"
)

// StatsSource is anything that can report engine counters.
type StatsSource interface {
	GetStats() map[string]interface{}
}

// Dashboard streams engine statistics to WebSocket clients.
type Dashboard struct {
	engine         StatsSource
	port           int
	clients        map[chan []byte]bool
	clientsMutex   sync.Mutex
	updateInterval time.Duration
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// DefaultUpdateInterval replaces a non-positive update interval.
const DefaultUpdateInterval = 5 * time.Second

func NewDashboard(engine StatsSource, port int, updateInterval time.Duration) *Dashboard {
	if updateInterval <= 0 {
		updateInterval = DefaultUpdateInterval
	}
	return &Dashboard{
		engine:         engine,
		port:           port,
		clients:        make(map[chan []byte]bool),
		updateInterval: updateInterval,
	}
}

// Handler returns the dashboard routes.
func (d *Dashboard) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", d.handleHealth)
	mux.HandleFunc("/api/stats", d.handleStats)
	mux.HandleFunc("/events", d.handleWebSocket)
	return mux
}

// Start serves the dashboard until ctx is cancelled.
func (d *Dashboard) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", d.port),
		Handler: d.Handler(),
	}

	go d.broadcastUpdates(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logging.Logger.Info().Int("port", d.port).Msg("Dashboard starting")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

func (d *Dashboard) handleHealth(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "Server is running")
}

func (d *Dashboard) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(d.engine.GetStats()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (d *Dashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Logger.Error().Err(err).Msg("Error upgrading to WebSocket")
		return
	}
	defer conn.Close()

	client := make(chan []byte, 8)
	d.addClient(client)
	defer d.removeClient(client)

	logging.Logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Dashboard client connected")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-client:
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-closed:
			logging.Logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Dashboard client disconnected")
			return
		}
	}
}

func (d *Dashboard) addClient(client chan []byte) {
	d.clientsMutex.Lock()
	d.clients[client] = true
	d.clientsMutex.Unlock()
}

func (d *Dashboard) removeClient(client chan []byte) {
	d.clientsMutex.Lock()
	delete(d.clients, client)
	d.clientsMutex.Unlock()
}

func (d *Dashboard) clientCount() int {
	d.clientsMutex.Lock()
	defer d.clientsMutex.Unlock()
	return len(d.clients)
}

func (d *Dashboard) broadcastUpdates(ctx context.Context) {
	ticker := time.NewTicker(d.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.broadcast()
		}
	}
}

func (d *Dashboard) broadcast() {
	message, err := json.Marshal(d.engine.GetStats())
	if err != nil {
		logging.Logger.Error().Err(err).Msg("Error marshaling stats")
		return
	}

	d.clientsMutex.Lock()
	defer d.clientsMutex.Unlock()
	for client := range d.clients {
		select {
		case client <- message:
		default:
			// slow client, drop this update
		}
	}
}
