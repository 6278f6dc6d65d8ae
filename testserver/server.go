// Package testserver provides a simulated ticket-queue-and-purchase
// service for exercising stampede without real infrastructure.
package testserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

// Options configures the simulated service.
type Options struct {
	// TokenField is the field name used in the enter-queue response,
	// normally "token" or "uuid".
	TokenField string
	// ActivateAfter is how many status polls a token stays WAITING before
	// turning ACTIVE. Zero admits immediately.
	ActivateAfter int
	// Seats is the inventory size. Seat numbers run 1..Seats.
	Seats int
	// RejectPurchases forces every purchase attempt to fail with 409 and
	// marks the requested seat as taken, draining the inventory.
	RejectPurchases bool
}

type tokenState struct {
	polls int
	rank  int64
}

// Server simulates the ticketing service's client-observable behavior:
// token issuance, queue admission, seat inventory, and purchase.
type Server struct {
	opts      Options
	mux       *http.ServeMux
	nextToken atomic.Int64

	mu        sync.Mutex
	tokens    map[string]*tokenState
	taken     map[int]bool
	purchased int
}

func New(opts Options) *Server {
	if opts.TokenField == "" {
		opts.TokenField = "token"
	}
	if opts.Seats == 0 {
		opts.Seats = 50
	}
	s := &Server{
		opts:   opts,
		mux:    http.NewServeMux(),
		tokens: make(map[string]*tokenState),
		taken:  make(map[int]bool),
	}
	s.registerHandlers()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Purchased returns how many seats have been successfully purchased.
func (s *Server) Purchased() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purchased
}

// SoldOut reports whether no seats remain available.
func (s *Server) SoldOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.taken) >= s.opts.Seats
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("/api/queues/tokens", s.handleEnter)
	s.mux.HandleFunc("/api/queues/tokens/", s.handleStatus)
	s.mux.HandleFunc("/api/seats", s.handleSeats)
	s.mux.HandleFunc("/api/tickets", s.handlePurchase)
}

// handleEnter issues a fresh admission token.
func (s *Server) handleEnter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := s.nextToken.Add(1)
	token := fmt.Sprintf("tok-%06d", id)

	s.mu.Lock()
	s.tokens[token] = &tokenState{rank: id}
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		s.opts.TokenField: token,
		"rank":            id,
	})
}

// handleStatus reports WAITING until the token has been polled
// ActivateAfter times, then ACTIVE, or SOLD_OUT once inventory is gone.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.URL.Path, "/api/queues/tokens/")

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tokens[token]
	if !ok {
		http.Error(w, "unknown token", http.StatusNotFound)
		return
	}
	if len(s.taken) >= s.opts.Seats {
		writeJSON(w, map[string]any{"status": "SOLD_OUT"})
		return
	}
	if st.polls < s.opts.ActivateAfter {
		st.polls++
		writeJSON(w, map[string]any{"status": "WAITING", "rank": st.rank})
		return
	}
	writeJSON(w, map[string]any{"status": "ACTIVE"})
}

// handleSeats returns the current seat snapshot.
func (s *Server) handleSeats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seats := make([]map[string]any, 0, s.opts.Seats)
	for n := 1; n <= s.opts.Seats; n++ {
		status := "available"
		if s.taken[n] {
			status = "taken"
		}
		seats = append(seats, map[string]any{"seatNumber": n, "status": status})
	}
	writeJSON(w, seats)
}

// handlePurchase takes the seat if it is still available. The inventory
// check and the take are one critical section, so two users cannot buy the
// same seat.
func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token := r.Header.Get("X-Queue-Token")

	var req struct {
		SeatNumber int `json:"seatNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[token]; !ok {
		http.Error(w, "unknown token", http.StatusUnauthorized)
		return
	}
	if req.SeatNumber < 1 || req.SeatNumber > s.opts.Seats {
		http.Error(w, "unknown seat", http.StatusNotFound)
		return
	}
	if s.taken[req.SeatNumber] {
		http.Error(w, "seat taken", http.StatusConflict)
		return
	}
	if s.opts.RejectPurchases {
		s.taken[req.SeatNumber] = true
		http.Error(w, "purchase rejected", http.StatusConflict)
		return
	}

	s.taken[req.SeatNumber] = true
	s.purchased++
	writeJSON(w, map[string]any{"seatNumber": req.SeatNumber, "status": "purchased"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
