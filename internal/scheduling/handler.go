package scheduling

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Avaneeshakrishna/cliniccall-AI/pkg/logging"
)

// Handler serves the slot, appointment and patient endpoints.
type Handler struct {
	repo     Repository
	booker   *Booker
	calendar *Calendar
	notifier Notifier
	logger   *logging.Logger
}

func NewHandler(repo Repository, booker *Booker, calendar *Calendar, notifier Notifier, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:     repo,
		booker:   booker,
		calendar: calendar,
		notifier: notifier,
		logger:   logger,
	}
}

// BookRequest is the body of POST /appointments/book.
type BookRequest struct {
	PatientID string `json:"patient_id"`
	SlotID    string `json:"slot_id"`
	Reason    string `json:"reason"`
}

// VoiceBookRequest is the body of POST /appointments/voice-book.
type VoiceBookRequest struct {
	Phone  string `json:"phone"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	SlotID string `json:"slot_id"`
	Reason string `json:"reason"`
}

// EnsurePatientRequest is the body of POST /patients/ensure.
type EnsurePatientRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// ListSlots handles GET /slots?department=&provider=&limit=
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	department := strings.TrimSpace(q.Get("department"))
	if department != "" {
		normalized, ok := NormalizeDepartment(department)
		if !ok {
			http.Error(w, "unknown department", http.StatusBadRequest)
			return
		}
		department = normalized
	}
	limit := 50
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	slots, err := h.calendar.NextOpen(r.Context(), department, strings.TrimSpace(q.Get("provider")), limit)
	if err != nil {
		h.logger.Error("failed to list slots", "error", err)
		http.Error(w, "failed to list slots", http.StatusInternalServerError)
		return
	}
	if slots == nil {
		slots = []Slot{}
	}
	writeJSON(w, http.StatusOK, slots)
}

// Book handles POST /appointments/book for a known patient id.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PatientID == "" || req.SlotID == "" {
		http.Error(w, "patient_id and slot_id are required", http.StatusBadRequest)
		return
	}

	result, err := h.booker.Book(r.Context(), req.PatientID, req.SlotID, req.Reason)
	h.writeBooking(w, r, result, err)
}

// VoiceBook handles POST /appointments/voice-book, creating the caller's
// patient record on the fly.
func (h *Handler) VoiceBook(w http.ResponseWriter, r *http.Request) {
	var req VoiceBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Phone) == "" || req.SlotID == "" {
		http.Error(w, "phone and slot_id are required", http.StatusBadRequest)
		return
	}

	details := PatientDetails{Phone: req.Phone, Name: req.Name, Email: req.Email}
	result, err := h.booker.BookForCaller(r.Context(), details, req.SlotID, req.Reason)
	h.writeBooking(w, r, result, err)
}

func (h *Handler) writeBooking(w http.ResponseWriter, r *http.Request, result BookingResult, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Patient not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrMissingContact):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("booking failed", "error", err)
		http.Error(w, "booking failed", http.StatusInternalServerError)
		return
	}
	if !result.Booked() {
		http.Error(w, ErrSlotUnavailable.Error(), http.StatusConflict)
		return
	}
	if h.notifier != nil && result.Patient != nil && result.Patient.Email != "" {
		h.notifier.NotifyBooked(r.Context(), NewConfirmation(result))
	}
	writeJSON(w, http.StatusOK, result.Appointment)
}

// Cancel handles POST /appointments/{appointmentID}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "appointmentID")
	if id == "" {
		http.Error(w, "missing appointment id", http.StatusBadRequest)
		return
	}
	appt, _, err := h.booker.Cancel(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Appointment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("cancel failed", "error", err, "appointment_id", id)
		http.Error(w, "cancel failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// EnsurePatient handles POST /patients/ensure.
func (h *Handler) EnsurePatient(w http.ResponseWriter, r *http.Request) {
	var req EnsurePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	patient, err := h.booker.RegisterPatient(r.Context(), PatientDetails(req))
	if errors.Is(err, ErrMissingContact) {
		http.Error(w, "Name and email are required to create a new patient", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error("ensure patient failed", "error", err)
		http.Error(w, "failed to ensure patient", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

// ListUrgentCases handles GET /urgent_cases, newest first.
func (h *Handler) ListUrgentCases(w http.ResponseWriter, r *http.Request) {
	cases, err := h.repo.ListUrgentCases(r.Context())
	if err != nil {
		h.logger.Error("failed to list urgent cases", "error", err)
		http.Error(w, "failed to list urgent cases", http.StatusInternalServerError)
		return
	}
	if cases == nil {
		cases = []UrgentCase{}
	}
	writeJSON(w, http.StatusOK, cases)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
