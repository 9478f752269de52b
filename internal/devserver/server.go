package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/freelago/chatkit/internal/domain"
	"github.com/freelago/chatkit/internal/transport/ws"
	"github.com/freelago/chatkit/pkg/validator"
)

const tokenTTL = 24 * time.Hour

// Server implements the marketplace backend's chat surface for development
// and tests: history, chat list, the services POST, token minting and the
// realtime websocket. Everything is held in memory.
type Server struct {
	log    *zap.SugaredLogger
	secret string
	hub    *hub
	store  *memStore
}

func New(log *zap.SugaredLogger, jwtSecret string) *Server {
	return &Server{
		log:    log,
		secret: jwtSecret,
		hub:    newHub(log),
		store:  newMemStore(),
	}
}

// Run drives the hub event loop until ctx is canceled. Call in a goroutine
// before serving the router.
func (s *Server) Run(ctx context.Context) {
	s.hub.run(ctx)
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/auth/token", s.handleToken)
	r.Get("/chat/list", s.handleChatList)
	r.Get("/chat/{userId}/{freelaId}", s.handleHistory)
	r.Post("/services", s.handleServices)
	r.Get("/ws", s.handleWS)

	return r
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID   string `json:"id"`
		Kind string `json:"kind"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if errs := validator.ValidateTokenRequest(req.ID, req.Kind, req.Name); errs.HasErrors() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": errs})
		return
	}

	token, err := MintToken(s.secret, domain.Party{ID: req.ID, Kind: domain.PartyKind(req.Kind)}, tokenTTL)
	if err != nil {
		http.Error(w, "could not mint token", http.StatusInternalServerError)
		return
	}
	s.store.setName(req.ID, req.Name)

	writeJSON(w, http.StatusOK, map[string]string{
		"id":    req.ID,
		"type":  req.Kind,
		"token": token,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	freelaID := chi.URLParam(r, "freelaId")
	writeJSON(w, http.StatusOK, s.store.messages(userID, freelaID))
}

func (s *Server) handleChatList(w http.ResponseWriter, r *http.Request) {
	partyID := r.URL.Query().Get("userId")
	if partyID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}
	listForUser, _ := strconv.ParseBool(r.URL.Query().Get("listForUser"))
	writeJSON(w, http.StatusOK, s.store.chatList(partyID, listForUser))
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	var req ServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if errs := validator.ValidateServiceRequest(req.UserID, req.FreelancerID, req.Status); errs.HasErrors() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": errs})
		return
	}
	if req.Status == "" {
		req.Status = "PENDING"
	}
	s.store.addService(req)
	s.log.Infow("service requested", "user", req.UserID, "freelancer", req.FreelancerID)
	writeJSON(w, http.StatusCreated, req)
}

// handleWS upgrades to a websocket. Auth is via ?token=, validated before
// any message flows.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	party, err := ValidateToken(s.secret, tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // any origin, dev only
	})
	if err != nil {
		s.log.Warnw("ws accept error", "error", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := newClient(s, conn, party)
	s.hub.register <- c

	go c.writePump()
	go c.readPump()
}

// handleSend persists an outbound message and echoes it to both
// participants as a receive_message event. The echo to the sender is the
// only way a sent message enters the sender's store.
func (s *Server) handleSend(c *client, p ws.SendPayload) {
	content := strings.TrimSpace(p.Content)
	if content == "" || p.SenderID == "" || p.ReceiverID == "" {
		c.sendError("INVALID_PAYLOAD", "content, senderId and receiverId required")
		return
	}
	if p.SenderID != c.party.ID {
		c.sendError("SENDER_MISMATCH", "senderId does not match the authenticated party")
		return
	}

	raw := domain.RawMessage{
		ID:        uuid.NewString(),
		Content:   content,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	var userID, freelaID string
	if p.SenderIsFreela {
		raw.SenderFreelaID = &p.SenderID
		raw.ReceiverUserID = &p.ReceiverID
		userID, freelaID = p.ReceiverID, p.SenderID
	} else {
		raw.SenderUserID = &p.SenderID
		raw.ReceiverFreelaID = &p.ReceiverID
		userID, freelaID = p.SenderID, p.ReceiverID
	}

	s.store.appendMessage(userID, freelaID, raw)

	evt, err := ws.NewEvent(ws.EventTypeReceiveMessage, raw)
	if err != nil {
		s.log.Errorw("event marshal error", "error", err)
		return
	}
	s.hub.deliverTo([]string{p.SenderID, p.ReceiverID}, evt)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
