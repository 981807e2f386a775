package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HammerMeetNail/petpals/internal/metrics"
	"github.com/HammerMeetNail/petpals/internal/models"
	"github.com/HammerMeetNail/petpals/internal/services"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
	streamBuffer     = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// liveStream buffers frames between a change feed callback and the websocket
// writer. Frames are dropped when the client falls behind.
type liveStream struct {
	name string
	out  chan any
}

func newLiveStream(name string) *liveStream {
	return &liveStream{name: name, out: make(chan any, streamBuffer)}
}

func (s *liveStream) offer(frame any) {
	select {
	case s.out <- frame:
	default:
		log.Printf("Dropping frame for slow %s stream", s.name)
	}
}

func (s *liveStream) offerEvent(e models.ChangeEvent) {
	s.offer(e)
}

// start takes ownership of sub and serves the stream until the client goes
// away. A nil sub with err set means the subscription failed.
func (s *liveStream) start(w http.ResponseWriter, r *http.Request, sub services.Subscription, err error) {
	if err != nil {
		log.Printf("Error subscribing to %s: %v", s.name, err)
		writeError(w, http.StatusServiceUnavailable, "Live updates unavailable")
		return
	}
	defer func() { _ = sub.Unsubscribe() }()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return
	}
	defer conn.Close()

	metrics.LiveSubscriptions.Inc()
	defer metrics.LiveSubscriptions.Dec()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case frame := <-s.out:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

// Stream upgrades to a websocket and pushes every new message of the match
// as a JSON frame until the client goes away.
func (h *MessageHandler) Stream(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	match, ok := h.loadMatch(w, r, user)
	if !ok {
		return
	}

	stream := newLiveStream("match " + match.ID.String() + " messages")
	sub, err := h.messageService.Subscribe(r.Context(), match.ID, func(e models.ChangeEvent) {
		if e.Type != models.ChangeInsert {
			return
		}
		var msg models.Message
		if err := e.Decode(&msg); err != nil {
			log.Printf("Error decoding message event: %v", err)
			return
		}
		stream.offer(msg)
	})
	stream.start(w, r, sub, err)
}

// Stream pushes change events for matches involving the caller's pets. The
// pet set is fixed when the stream opens.
func (h *MatchHandler) Stream(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	petIDs, err := h.petService.PetIDsForOwner(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, err, "listing pets")
		return
	}

	stream := newLiveStream("user " + user.ID.String() + " matches")
	sub, err := h.matchService.Subscribe(r.Context(), petIDs, stream.offerEvent)
	stream.start(w, r, sub, err)
}

// Stream pushes change events for the caller's own pets.
func (h *PetHandler) Stream(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	stream := newLiveStream("user " + user.ID.String() + " pets")
	sub, err := h.petService.Subscribe(r.Context(), user.ID, stream.offerEvent)
	stream.start(w, r, sub, err)
}
