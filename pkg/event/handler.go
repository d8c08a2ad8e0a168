package event

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/homekeep/homekeep/internal/rest"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	events *Service
}

type EventDTO struct {
	ID          string     `json:"id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	StartTime   time.Time  `json:"start"`
	EndTime     *time.Time `json:"end,omitempty"`
	AllDay      bool       `json:"allDay"`
	Recurrence  string     `json:"recurrence,omitempty"`
	Color       string     `json:"color,omitempty"`
	OwnerID     int        `json:"ownerId,omitempty"`
	SharedWith  []int      `json:"sharedWith,omitempty"`
}

func NewHandler(events *Service) *Handler {
	return &Handler{events: events}
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from (date) format", "'from' must be in RFC3339 format")
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to (date) format", "'to' must be in RFC3339 format")
		return
	}

	events, err := h.events.List(r.Context(), from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	dtos := make([]EventDTO, 0, len(events))
	for _, e := range events {
		dtos = append(dtos, eventToDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["eventId"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid event id", "")
		return
	}
	event, err := h.events.Get(r.Context(), id)
	if errors.Is(err, ErrEventNotFound) {
		writeError(w, http.StatusNotFound, "Event not found", "")
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, eventToDTO(event))
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var dto EventDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	event, err := dtoToEvent(dto)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	created, err := h.events.Create(r.Context(), event)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, eventToDTO(created))
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["eventId"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid event id", "")
		return
	}
	var dto EventDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	event, err := dtoToEvent(dto)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	event.ID = id

	updated, err := h.events.Update(r.Context(), event)
	if errors.Is(err, ErrEventNotFound) {
		writeError(w, http.StatusNotFound, "Event not found", "")
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, eventToDTO(updated))
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["eventId"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid event id", "")
		return
	}
	if err := h.events.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrEventNotFound) {
			writeError(w, http.StatusNotFound, "Event not found", "")
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func eventToDTO(e Event) EventDTO {
	return EventDTO{
		ID:          e.ID.String(),
		Title:       e.Title,
		Description: e.Description,
		StartTime:   e.StartTime,
		EndTime:     e.EndTime,
		AllDay:      e.AllDay,
		Recurrence:  string(e.Recurrence),
		Color:       e.Color,
		OwnerID:     e.OwnerID,
		SharedWith:  e.SharedWith,
	}
}

func dtoToEvent(dto EventDTO) (Event, error) {
	recurrence := Recurrence(dto.Recurrence)
	switch recurrence {
	case "", RecurrenceNone:
		recurrence = RecurrenceNone
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
	default:
		return Event{}, errors.New("invalid recurrence")
	}
	return Event{
		Title:       dto.Title,
		Description: dto.Description,
		StartTime:   dto.StartTime,
		EndTime:     dto.EndTime,
		AllDay:      dto.AllDay,
		Recurrence:  recurrence,
		Color:       dto.Color,
		SharedWith:  dto.SharedWith,
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
