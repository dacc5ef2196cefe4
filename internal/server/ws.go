package server

import (
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sidecarlabs/agora/internal/metrics"
	"github.com/sidecarlabs/agora/internal/orchestrator"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// subscriberBuffer bounds how far a slow websocket client can lag before
// it starts missing events.
const subscriberBuffer = 64

// Hub fans the pool's aggregate event stream out to websocket
// subscribers. Each subscriber gets its own buffered channel; a full
// buffer drops events for that subscriber only.
type Hub struct {
	source  <-chan orchestrator.Event
	metrics *metrics.Metrics

	mu   sync.Mutex
	subs map[chan orchestrator.Event]bool
}

// NewHub creates a Hub over the given event source.
func NewHub(source <-chan orchestrator.Event, m *metrics.Metrics) *Hub {
	return &Hub{
		source:  source,
		metrics: m,
		subs:    make(map[chan orchestrator.Event]bool),
	}
}

// Run broadcasts until the source channel closes.
func (h *Hub) Run() {
	for event := range h.source {
		h.observe(event)
		h.mu.Lock()
		for sub := range h.subs {
			select {
			case sub <- event:
			default:
				if h.metrics != nil {
					h.metrics.EventsDropped.Inc()
				}
			}
		}
		h.mu.Unlock()
	}

	h.mu.Lock()
	for sub := range h.subs {
		close(sub)
	}
	h.subs = make(map[chan orchestrator.Event]bool)
	h.mu.Unlock()
}

// observe folds run lifecycle events into the Prometheus collectors.
func (h *Hub) observe(event orchestrator.Event) {
	if h.metrics == nil {
		return
	}
	switch event.Type {
	case orchestrator.EventOrchestrationStarted:
		h.metrics.RunsActive.Inc()
	case orchestrator.EventSubtaskCompleted, orchestrator.EventSubtaskFailed,
		orchestrator.EventSubtaskSkipped:
		h.metrics.SubtasksTotal.WithLabelValues(subtaskState(event.Type)).Inc()
	case orchestrator.EventOrchestrationCompleted:
		h.metrics.RunsActive.Dec()
		h.metrics.RunsTotal.WithLabelValues(event.Message).Inc()
		h.metrics.SpendMicros.Add(float64(event.Cost.Micros))
	case orchestrator.EventOrchestrationError:
		h.metrics.RunsActive.Dec()
		h.metrics.RunsTotal.WithLabelValues("aborted").Inc()
	}
}

func subtaskState(t orchestrator.EventType) string {
	switch t {
	case orchestrator.EventSubtaskFailed:
		return "failed"
	case orchestrator.EventSubtaskSkipped:
		return "skipped"
	default:
		return "completed"
	}
}

// Subscribe registers a new subscriber channel.
func (h *Hub) Subscribe() chan orchestrator.Event {
	ch := make(chan orchestrator.Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = true
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel.
func (h *Hub) Unsubscribe(ch chan orchestrator.Event) {
	h.mu.Lock()
	if h.subs[ch] {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// streamEvents upgrades the connection and forwards orchestration events
// as JSON. With a run ID path parameter only that run's events are sent.
func (s *Server) streamEvents(c *gin.Context) {
	runID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[server] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.WSConnections.Inc()
		defer s.metrics.WSConnections.Dec()
	}

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	// Reader goroutine: surface client disconnects so the write loop can
	// stop.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-sub:
			if !ok {
				return
			}
			if runID != "" && event.RunID != runID {
				continue
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-disconnected:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
