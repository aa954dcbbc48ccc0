package authserver

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rmacdonaldsmith/pusher-go/pkg/auth"
	"github.com/rmacdonaldsmith/pusher-go/pkg/connection"
	"github.com/rs/zerolog"
)

var socketIDPattern = regexp.MustCompile(`^\d+\.\d+$`)

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	AppKey    string    `json:"appKey"`
	AuthMode  string    `json:"authMode"`
	Timestamp time.Time `json:"timestamp"`
}

// Handlers serves the auth endpoints
type Handlers struct {
	jwtAuth *JWTAuth
	appKey  string
	secret  string
	noAuth  bool
	log     zerolog.Logger
}

// NewHandlers creates the handlers for one application
func NewHandlers(jwtAuth *JWTAuth, appKey, secret string, noAuth bool, logger zerolog.Logger) *Handlers {
	return &Handlers{
		jwtAuth: jwtAuth,
		appKey:  appKey,
		secret:  secret,
		noAuth:  noAuth,
		log:     logger,
	}
}

// Login handles POST /auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "userId is required", http.StatusBadRequest)
		return
	}

	token, expiresAt, err := h.jwtAuth.GenerateToken(req.UserID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to generate token")
		writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	h.log.Info().Str("user_id", req.UserID).Msg("Issued token")
	writeJSON(w, auth.LoginResponse{
		Token:     token,
		UserID:    req.UserID,
		ExpiresAt: expiresAt,
	}, http.StatusOK)
}

// ChannelAuth handles POST /pusher/auth. It signs subscriptions to private
// and presence channels for the authenticated user.
func (h *Handlers) ChannelAuth(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, "Invalid form body", http.StatusBadRequest)
		return
	}

	socketID := r.PostForm.Get("socket_id")
	channel := r.PostForm.Get("channel_name")

	if !socketIDPattern.MatchString(socketID) {
		writeError(w, "socket_id is missing or malformed", http.StatusBadRequest)
		return
	}
	if channel == "" {
		writeError(w, "channel_name is required", http.StatusBadRequest)
		return
	}
	if !connection.RequiresAuthorization(channel) {
		writeError(w, "Channel "+channel+" does not require authorization", http.StatusBadRequest)
		return
	}

	userID := GetUserID(r)

	var channelData string
	if strings.HasPrefix(channel, connection.PresencePrefix) {
		data, err := json.Marshal(map[string]string{"user_id": userID})
		if err != nil {
			writeError(w, "Failed to encode channel data", http.StatusInternalServerError)
			return
		}
		channelData = string(data)
	}

	h.log.Debug().
		Str("user_id", userID).
		Str("channel", channel).
		Str("socket_id", socketID).
		Msg("Authorized channel")

	writeJSON(w, auth.AuthResponse{
		Auth:        auth.Sign(h.appKey, h.secret, socketID, channel, channelData),
		ChannelData: channelData,
	}, http.StatusOK)
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	mode := "jwt"
	if h.noAuth {
		mode = "none"
	}
	writeJSON(w, HealthResponse{
		Status:    "healthy",
		AppKey:    h.appKey,
		AuthMode:  mode,
		Timestamp: time.Now(),
	}, http.StatusOK)
}
