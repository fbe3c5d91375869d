// Package remotetest runs an in-process stand-in for the chat service.
// It speaks the same REST routes and push channel as the real service so the
// client stack can be exercised end to end without a network dependency.
package remotetest

import (
	"chat-client/auth"
	"chat-client/domain"
	"chat-client/transport"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Route names used by Calls.
const (
	RouteVerify    = "verify"
	RouteRefresh   = "refresh"
	RouteLogin     = "login"
	RouteRegister  = "register"
	RouteVerifyOTP = "verify-otp"
	RouteFetch     = "fetch"
	RouteSend      = "send"
	RoutePush      = "ws"
)

// naiveLayout is the timestamp format of the real service: UTC without offset.
const naiveLayout = "2006-01-02T15:04:05.999999"

type account struct {
	identity domain.Identity
	password string
	verified bool
	otp      string
}

type pushConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *pushConn) write(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, frame)
}

type Server struct {
	URL string

	// AccessTTL and RefreshTTL control the lifetime of issued tokens.
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	server     *httptest.Server
	signingKey []byte
	log        *slog.Logger
	upgrader   websocket.Upgrader

	mu       sync.Mutex
	accounts map[string]*account // by email
	messages []domain.Message
	conns    map[string]map[*pushConn]struct{}
	calls    map[string]int
}

func NewServer(log *slog.Logger) *Server {
	s := &Server{
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		signingKey: []byte("remotetest-" + uuid.NewString()),
		log:        log,
		accounts:   make(map[string]*account),
		conns:      make(map[string]map[*pushConn]struct{}),
		calls:      make(map[string]int),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/verify", s.handleVerify)
	mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/verify-otp", s.handleVerifyOTP)
	mux.HandleFunc("GET /api/messages/chat/{partner}", s.handleFetch)
	mux.HandleFunc("POST /api/messages/send", s.handleSend)
	mux.HandleFunc("GET /api/messages/ws/{user}", s.handlePush)

	s.server = httptest.NewServer(mux)
	s.URL = s.server.URL
	return s
}

// Close disconnects every push channel and stops the server.
func (s *Server) Close() {
	s.mu.Lock()
	for _, conns := range s.conns {
		for c := range conns {
			_ = c.conn.Close()
		}
	}
	s.mu.Unlock()
	s.server.Close()
}

// AddUser creates a verified account and returns its identity.
func (s *Server) AddUser(email, username, password string) domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity := domain.Identity{UserID: uuid.NewString(), Email: email, DisplayName: username}
	s.accounts[email] = &account{identity: identity, password: password, verified: true}
	return identity
}

// Credentials issues a fresh credential set for an existing account.
func (s *Server) Credentials(email string, accessTTL time.Duration) (domain.Credentials, error) {
	s.mu.Lock()
	acc, ok := s.accounts[email]
	s.mu.Unlock()
	if !ok {
		return domain.Credentials{}, fmt.Errorf("remotetest: unknown account %s", email)
	}
	access, err := auth.GenerateToken(acc.identity.UserID, auth.KindAccess, s.signingKey, accessTTL)
	if err != nil {
		return domain.Credentials{}, err
	}
	refresh, err := auth.GenerateToken(acc.identity.UserID, auth.KindRefresh, s.signingKey, s.RefreshTTL)
	if err != nil {
		return domain.Credentials{}, err
	}
	return domain.Credentials{AccessToken: access, RefreshToken: refresh, Identity: acc.identity}, nil
}

// OTP returns the pending registration code of email.
func (s *Server) OTP(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[email]
	if !ok || acc.verified {
		return "", false
	}
	return acc.otp, true
}

// Seed stores a message without pushing it.
func (s *Server) Seed(m domain.Message) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = domain.StatusAllowed
	}
	s.messages = append(s.messages, m)
	return m
}

// Push delivers m on every push channel of userID.
func (s *Server) Push(userID string, m domain.Message) error {
	frame, err := transport.EncodePush(m)
	if err != nil {
		return err
	}
	return s.PushRaw(userID, frame)
}

// PushRaw delivers an arbitrary frame on every push channel of userID.
func (s *Server) PushRaw(userID string, frame []byte) error {
	s.mu.Lock()
	conns := make([]*pushConn, 0, len(s.conns[userID]))
	for c := range s.conns[userID] {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		if err := c.write(frame); err != nil {
			return err
		}
	}
	return nil
}

// Connected counts the open push channels of userID.
func (s *Server) Connected(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns[userID])
}

// Calls reports how many times route was hit.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

func (s *Server) count(route string) {
	s.mu.Lock()
	s.calls[route]++
	s.mu.Unlock()
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	s.count(RouteVerify)
	claims, ok := s.bearer(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "user_id": claims.UserID})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.count(RouteRefresh)
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}
	claims, err := auth.ValidateToken(body.RefreshToken, s.signingKey)
	if err != nil || claims.Kind != auth.KindRefresh {
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	acc, ok := s.accountByID(claims.UserID)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Unknown user")
		return
	}
	access, err := auth.GenerateToken(acc.identity.UserID, auth.KindAccess, s.signingKey, s.AccessTTL)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"access_token": access,
		"user_id":      acc.identity.UserID,
		"email":        acc.identity.Email,
		"username":     acc.identity.DisplayName,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.count(RouteLogin)
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}
	s.mu.Lock()
	acc, ok := s.accounts[body.Email]
	s.mu.Unlock()
	if !ok || !acc.verified || acc.password != body.Password {
		writeDetail(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	s.writeCredentials(w, body.Email)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	s.count(RouteRegister)
	var body struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}
	code, err := newOTP()
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.mu.Lock()
	if _, exists := s.accounts[body.Email]; exists {
		s.mu.Unlock()
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}
	s.accounts[body.Email] = &account{
		identity: domain.Identity{UserID: uuid.NewString(), Email: body.Email, DisplayName: body.Username},
		password: body.Password,
		otp:      code,
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "OTP sent to your email"})
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	s.count(RouteVerifyOTP)
	var body struct {
		Email   string `json:"email"`
		OTPCode string `json:"otp_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}
	s.mu.Lock()
	acc, ok := s.accounts[body.Email]
	valid := ok && !acc.verified && acc.otp == body.OTPCode
	if valid {
		acc.verified = true
		acc.otp = ""
	}
	s.mu.Unlock()
	if !valid {
		writeDetail(w, http.StatusBadRequest, "Invalid or expired OTP")
		return
	}
	s.writeCredentials(w, body.Email)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	s.count(RouteFetch)
	claims, ok := s.bearer(r)
	local := r.URL.Query().Get("user_id")
	if !ok || claims.UserID != local {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	key := domain.ConversationKey{Local: local, Remote: r.PathValue("partner")}

	s.mu.Lock()
	out := make([]transport.WireMessage, 0)
	for _, m := range s.messages {
		if key.Involves(m) {
			out = append(out, toWire(m))
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	s.count(RouteSend)
	claims, ok := s.bearer(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	var body struct {
		SenderID    string `json:"sender_id"`
		RecipientID string `json:"recipient_id"`
		Content     string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}
	if body.SenderID != claims.UserID {
		writeDetail(w, http.StatusForbidden, "Sender does not match token")
		return
	}
	if strings.TrimSpace(body.Content) == "" || body.RecipientID == "" {
		writeDetail(w, http.StatusBadRequest, "Recipient and content are required")
		return
	}

	score := 0.02
	m := s.Seed(domain.Message{
		SenderID:    body.SenderID,
		RecipientID: body.RecipientID,
		Content:     body.Content,
		CreatedAt:   time.Now().UTC(),
		Status:      domain.StatusAllowed,
		RiskScore:   &score,
	})

	for _, userID := range []string{m.RecipientID, m.SenderID} {
		if err := s.Push(userID, m); err != nil {
			s.log.Warn("Push after send failed", "user_id", userID, "error", err)
		}
	}

	// The real service answers with the stored record, whose content is encrypted.
	stored := toWire(m)
	stored.Content = ""
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	s.count(RoutePush)
	userID := r.PathValue("user")
	if r.Header.Get("Authorization") != "" {
		claims, ok := s.bearer(r)
		if !ok || claims.UserID != userID {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Upgrade failed", "error", err)
		return
	}
	pc := &pushConn{conn: conn}
	s.mu.Lock()
	if s.conns[userID] == nil {
		s.conns[userID] = make(map[*pushConn]struct{})
	}
	s.conns[userID][pc] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns[userID], pc)
		if len(s.conns[userID]) == 0 {
			delete(s.conns, userID)
		}
		s.mu.Unlock()
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeCredentials(w http.ResponseWriter, email string) {
	creds, err := s.Credentials(email, s.AccessTTL)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"access_token":  creds.AccessToken,
		"refresh_token": creds.RefreshToken,
		"user_id":       creds.Identity.UserID,
		"email":         creds.Identity.Email,
		"username":      creds.Identity.DisplayName,
	})
}

func (s *Server) bearer(r *http.Request) (*auth.Claims, bool) {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found || token == "" {
		return nil, false
	}
	claims, err := auth.ValidateToken(token, s.signingKey)
	if err != nil || claims.Kind == auth.KindRefresh {
		return nil, false
	}
	return claims, true
}

func (s *Server) accountByID(userID string) (*account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.identity.UserID == userID {
			return acc, true
		}
	}
	return nil, false
}

func toWire(m domain.Message) transport.WireMessage {
	w := transport.FromDomain(m)
	w.CreatedAt = m.CreatedAt.UTC().Format(naiveLayout)
	return w
}

func newOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
