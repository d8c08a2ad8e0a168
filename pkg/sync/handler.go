package sync

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/homekeep/homekeep/internal/rest"
	"github.com/homekeep/homekeep/pkg/user"
)

type ConnectionDTO struct {
	ID           string     `json:"id"`
	CalendarID   string     `json:"calendarId"`
	Kind         string     `json:"kind"`
	Enabled      bool       `json:"enabled"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
}

type ConnectionRequestDTO struct {
	CalendarID      string `json:"calendarId"`
	Kind            string `json:"kind"`
	CredentialsFile string `json:"credentialsFile,omitempty"`
	AccessToken     string `json:"accessToken,omitempty"`
	RefreshToken    string `json:"refreshToken,omitempty"`
	TokenExpiresAt  string `json:"tokenExpiresAt,omitempty"`
}

type EnabledDTO struct {
	Enabled bool `json:"enabled"`
}

type Handler struct {
	connections ConnectionRepo
	enqueuer    Enqueuer
}

func NewHandler(connections ConnectionRepo, enqueuer Enqueuer) *Handler {
	return &Handler{connections: connections, enqueuer: enqueuer}
}

func (h *Handler) GetConnection(w http.ResponseWriter, r *http.Request) {
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "No user in request", "")
		return
	}
	conn, err := h.connections.GetForUser(r.Context(), userId)
	if err != nil {
		if errors.Is(err, ErrConnectionNotFound) {
			writeError(w, http.StatusNotFound, "No calendar connection", "")
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, connectionToDTO(conn))
}

func (h *Handler) SaveConnection(w http.ResponseWriter, r *http.Request) {
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "No user in request", "")
		return
	}

	var dto ConnectionRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	conn, err := dtoToConnection(dto, userId)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	stored, err := h.connections.Upsert(r.Context(), conn)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, connectionToDTO(stored))
}

func (h *Handler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "No user in request", "")
		return
	}
	conn, err := h.connections.GetForUser(r.Context(), userId)
	if err != nil {
		if errors.Is(err, ErrConnectionNotFound) {
			writeError(w, http.StatusNotFound, "No calendar connection", "")
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var dto EnabledDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.connections.SetEnabled(r.Context(), conn.ID, dto.Enabled); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	conn.Enabled = dto.Enabled
	writeJSON(w, http.StatusOK, connectionToDTO(conn))
}

func (h *Handler) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "No user in request", "")
		return
	}
	conn, err := h.connections.GetForUser(r.Context(), userId)
	if err != nil {
		if errors.Is(err, ErrConnectionNotFound) {
			writeError(w, http.StatusNotFound, "No calendar connection", "")
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.connections.Delete(r.Context(), conn.ID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SyncNow enqueues an immediate pull for the caller's connection instead of
// waiting for the next scheduled round.
func (h *Handler) SyncNow(w http.ResponseWriter, r *http.Request) {
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "No user in request", "")
		return
	}
	conn, err := h.connections.GetForUser(r.Context(), userId)
	if err != nil {
		if errors.Is(err, ErrConnectionNotFound) {
			writeError(w, http.StatusNotFound, "No calendar connection", "")
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !conn.Enabled {
		writeError(w, http.StatusConflict, "Connection is disabled", "")
		return
	}
	if err := h.enqueuer.Enqueue(TaskInboundPull, PullTask{ConnectionID: conn.ID}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func connectionToDTO(conn Connection) ConnectionDTO {
	dto := ConnectionDTO{
		ID:         conn.ID.String(),
		CalendarID: conn.CalendarID,
		Kind:       string(conn.Credentials.Kind()),
		Enabled:    conn.Enabled,
	}
	if !conn.LastSyncedAt.IsZero() {
		syncedAt := conn.LastSyncedAt
		dto.LastSyncedAt = &syncedAt
	}
	return dto
}

func dtoToConnection(dto ConnectionRequestDTO, userId int) (Connection, error) {
	if dto.CalendarID == "" {
		return Connection{}, errors.New("calendarId is required")
	}

	var credentials Credentials
	switch CredentialKind(dto.Kind) {
	case KindServiceAccount:
		if dto.CredentialsFile == "" {
			return Connection{}, errors.New("credentialsFile is required for service account connections")
		}
		credentials = ServiceAccountCredentials{CredentialsFile: dto.CredentialsFile}
	case KindOAuth:
		if dto.AccessToken == "" || dto.RefreshToken == "" {
			return Connection{}, errors.New("accessToken and refreshToken are required for oauth2 connections")
		}
		expiry := time.Time{}
		if dto.TokenExpiresAt != "" {
			parsed, err := time.Parse(time.RFC3339, dto.TokenExpiresAt)
			if err != nil {
				return Connection{}, errors.New("tokenExpiresAt must be in RFC3339 format")
			}
			expiry = parsed
		}
		credentials = OAuthCredentials{
			AccessToken:  dto.AccessToken,
			RefreshToken: dto.RefreshToken,
			Expiry:       expiry,
		}
	default:
		return Connection{}, errors.New("invalid credential kind")
	}

	return Connection{
		UserID:      userId,
		CalendarID:  dto.CalendarID,
		Enabled:     true,
		Credentials: credentials,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(rest.ErrorResponse{Error: message, Details: details}); err != nil {
		log.Errorf("failed to encode error response: %v", err)
	}
}
