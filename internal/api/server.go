package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"codepair/internal/ai"
	"codepair/internal/auth"
	"codepair/internal/session"
	"codepair/pkg/interfaces"
	"codepair/pkg/types"
)

// RelayStats exposes live relay state without coupling the API layer to
// the dispatcher implementation.
type RelayStats interface {
	Stats() map[string]int
}

// contextKey namespaces request context values.
type contextKey string

const claimsKey contextKey = "claims"

// Server is the HTTP CRUD surface. No business logic lives here: it
// handles routing, JSON serialization and auth, and delegates to the
// session manager, the store and the assist client.
type Server struct {
	sessions *session.Manager
	store    interfaces.Store
	relay    RelayStats
	tokens   *auth.TokenManager
	assist   *ai.Client // nil disables the assist endpoints
	router   *http.ServeMux
}

// NewServer creates the API server and wires its routes.
func NewServer(sessions *session.Manager, store interfaces.Store, relay RelayStats, tokens *auth.TokenManager, assist *ai.Client) *Server {
	s := &Server{
		sessions: sessions,
		store:    store,
		relay:    relay,
		tokens:   tokens,
		assist:   assist,
		router:   http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	public := func(h http.HandlerFunc) http.Handler {
		return s.corsMiddleware(s.jsonMiddleware(h))
	}
	protected := func(h http.HandlerFunc) http.Handler {
		return s.corsMiddleware(s.jsonMiddleware(s.authMiddleware(h)))
	}

	s.router.Handle("/api/users", public(s.handleUsers))
	s.router.Handle("/api/users/", protected(s.handleUserByID))
	s.router.Handle("/api/login", public(s.handleLogin))
	s.router.Handle("/api/sessions", protected(s.handleSessions))
	s.router.Handle("/api/sessions/", protected(s.handleSessionByID))
	s.router.Handle("/api/files/", protected(s.handleFileByID))
	s.router.Handle("/api/feedback", protected(s.handleFeedback))
	s.router.Handle("/api/ai/", protected(s.handleAssist))
	s.router.Handle("/health", public(s.healthCheck))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Request/Response types for JSON serialization

type RegisterRequest struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Skills   []string `json:"skills,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  *types.User `json:"user"`
}

type CreateSessionRequest struct {
	Name     string `json:"name"`
	Language string `json:"language"`
}

type CreateFeedbackRequest struct {
	SessionID int64  `json:"session_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Database  string         `json:"database"`
	Relay     map[string]int `json:"relay"`
	Sessions  interface{}    `json:"sessions"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// User endpoints

// handleUsers covers POST /api/users (register) and GET /api/users.
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.registerUser(w, r)
	case http.MethodGet:
		s.listUsers(w, r)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	user := &types.User{Username: req.Username, Email: req.Email}
	if err := user.Validate(); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	user.PasswordHash = hash

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, interfaces.ErrUserExists) {
			s.sendError(w, "Username already taken", http.StatusConflict)
			return
		}
		s.sendError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	for _, skill := range req.Skills {
		if err := s.store.AddUserSkill(r.Context(), user.ID, skill); err != nil {
			log.Printf("Failed to add skill %q for user %d: %v", skill, user.ID, err)
		}
	}
	user.Skills = req.Skills

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(user)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	onlineOnly := r.URL.Query().Get("online") == "true"
	users, err := s.store.ListUsers(r.Context(), onlineOnly)
	if err != nil {
		s.sendError(w, "Failed to list users", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"users": users})
}

// handleUserByID covers GET /api/users/{id} and the skills sub-resource.
func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/users/"), "/")
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || userID <= 0 {
		s.sendError(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	if len(parts) > 1 && parts[1] == "skills" {
		s.handleUserSkills(w, r, userID)
		return
	}

	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			s.sendError(w, "User not found", http.StatusNotFound)
			return
		}
		s.sendError(w, "Failed to get user", http.StatusInternalServerError)
		return
	}

	if skills, err := s.store.ListUserSkills(r.Context(), userID); err == nil {
		user.Skills = skills
	}

	_ = json.NewEncoder(w).Encode(user)
}

func (s *Server) handleUserSkills(w http.ResponseWriter, r *http.Request, userID int64) {
	switch r.Method {
	case http.MethodGet:
		skills, err := s.store.ListUserSkills(r.Context(), userID)
		if err != nil {
			s.sendError(w, "Failed to list skills", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"skills": skills})

	case http.MethodPost:
		claims := claimsFrom(r)
		if claims == nil || claims.UserID != userID {
			s.sendError(w, "Cannot modify another user's skills", http.StatusForbidden)
			return
		}
		var req struct {
			Skill string `json:"skill"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Skill == "" {
			s.sendError(w, "Skill name is required", http.StatusBadRequest)
			return
		}
		if err := s.store.AddUserSkill(r.Context(), userID, req.Skill); err != nil {
			s.sendError(w, "Failed to add skill", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"skill": req.Skill})

	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleLogin covers POST /api/login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		// Same response for unknown user and wrong password
		s.sendError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		s.sendError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		s.sendError(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(LoginResponse{Token: token, User: user})
}

// Session endpoints

// handleSessions covers POST /api/sessions and GET /api/sessions.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createSession(w, r)
	case http.MethodGet:
		s.listSessions(w, r)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	if claims == nil {
		s.sendError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		s.sendError(w, "Session name is required", http.StatusBadRequest)
		return
	}

	created, err := s.sessions.CreateSession(r.Context(), req.Name, claims.UserID, req.Language)
	if err != nil {
		if errors.Is(err, session.ErrInvalidSessionName) {
			s.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.sendError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(created)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.ListActiveSessions(r.Context())
	if err != nil {
		s.sendError(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"sessions": sessions})
}

// handleSessionByID covers the /api/sessions/{id} sub-tree.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	sessionID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || sessionID <= 0 {
		s.sendError(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	if len(parts) > 1 {
		switch parts[1] {
		case "join":
			s.joinSession(w, r, sessionID)
		case "files":
			s.listSessionFiles(w, r, sessionID)
		case "feedback":
			s.listSessionFeedback(w, r, sessionID)
		case "chat":
			s.listSessionChat(w, r, sessionID)
		default:
			s.sendError(w, "Not found", http.StatusNotFound)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getSession(w, r, sessionID)
	case http.MethodDelete:
		s.endSession(w, r, sessionID)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, sessionID int64) {
	found, err := s.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			s.sendError(w, "Session not found", http.StatusNotFound)
			return
		}
		s.sendError(w, "Failed to get session", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(found)
}

func (s *Server) joinSession(w http.ResponseWriter, r *http.Request, sessionID int64) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := claimsFrom(r)
	if claims == nil {
		s.sendError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	joined, err := s.sessions.JoinSession(r.Context(), sessionID, claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			s.sendError(w, "Session not found", http.StatusNotFound)
		case errors.Is(err, session.ErrSessionEnded):
			s.sendError(w, "Session has ended", http.StatusGone)
		case errors.Is(err, session.ErrSessionFull):
			s.sendError(w, "Session already has a partner", http.StatusConflict)
		case errors.Is(err, session.ErrSelfPartner):
			s.sendError(w, "Cannot join your own session as partner", http.StatusBadRequest)
		default:
			s.sendError(w, "Failed to join session", http.StatusInternalServerError)
		}
		return
	}

	_ = json.NewEncoder(w).Encode(joined)
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request, sessionID int64) {
	err := s.sessions.EndSession(r.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			s.sendError(w, "Session not found", http.StatusNotFound)
		case errors.Is(err, session.ErrSessionAlreadyEnded):
			s.sendError(w, "Session already ended", http.StatusBadRequest)
		default:
			s.sendError(w, "Failed to end session", http.StatusInternalServerError)
		}
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "Session ended successfully"})
}

func (s *Server) listSessionFiles(w http.ResponseWriter, r *http.Request, sessionID int64) {
	files, err := s.store.ListSessionFiles(r.Context(), sessionID)
	if err != nil {
		s.sendError(w, "Failed to list files", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"files": files})
}

func (s *Server) listSessionFeedback(w http.ResponseWriter, r *http.Request, sessionID int64) {
	feedback, err := s.store.ListSessionFeedback(r.Context(), sessionID)
	if err != nil {
		s.sendError(w, "Failed to list feedback", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"feedback": feedback})
}

func (s *Server) listSessionChat(w http.ResponseWriter, r *http.Request, sessionID int64) {
	messages, err := s.store.GetSessionChat(r.Context(), sessionID)
	if err != nil {
		s.sendError(w, "Failed to load chat history", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"messages": messages})
}

// File endpoint

// handleFileByID covers GET /api/files/{id}.
func (s *Server) handleFileByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	idPart := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/files/"), "/")[0]
	fileID, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || fileID <= 0 {
		s.sendError(w, "Invalid file ID", http.StatusBadRequest)
		return
	}

	file, err := s.store.GetFile(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, interfaces.ErrFileNotFound) {
			s.sendError(w, "File not found", http.StatusNotFound)
			return
		}
		s.sendError(w, "Failed to get file", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(file)
}

// Feedback endpoint

// handleFeedback covers POST /api/feedback.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := claimsFrom(r)
	if claims == nil {
		s.sendError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req CreateFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	feedback := &types.Feedback{
		SessionID: req.SessionID,
		AuthorID:  claims.UserID,
		Rating:    req.Rating,
		Comment:   req.Comment,
	}
	if err := feedback.Validate(); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.CreateFeedback(r.Context(), feedback); err != nil {
		s.sendError(w, "Failed to save feedback", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(feedback)
}

// AI assist endpoints

// handleAssist covers POST /api/ai/{suggest|analyze|fix|explain}.
func (s *Server) handleAssist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.assist == nil {
		s.sendError(w, "AI assist is not configured", http.StatusServiceUnavailable)
		return
	}

	op := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/ai/"), "/")[0]

	var req ai.AssistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	response, err := s.assist.Assist(r.Context(), op, &req)
	if err != nil {
		switch {
		case errors.Is(err, ai.ErrUnknownOp):
			s.sendError(w, "Unknown assist operation", http.StatusNotFound)
		case errors.Is(err, ai.ErrEmptyCode):
			s.sendError(w, "Code is required", http.StatusBadRequest)
		default:
			log.Printf("Assist %s failed: %v", op, err)
			s.sendError(w, "Assist request failed", http.StatusBadGateway)
		}
		return
	}

	_ = json.NewEncoder(w).Encode(response)
}

// Health endpoint

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Database:  dbStatus,
		Relay:     s.relay.Stats(),
		Sessions:  s.sessions.GetStats(),
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(response)
}

// Middleware and helpers

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// corsMiddleware enables web client access. All origins are allowed in
// development; production deployments should restrict this.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// jsonMiddleware sets the JSON content type on all API responses.
func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// authMiddleware requires a valid bearer token and stashes its claims in
// the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			s.sendError(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		claims, err := s.tokens.Validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			s.sendError(w, "Invalid authentication token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// claimsFrom returns the authenticated claims on a request, or nil.
func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return claims
}
