package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Avaneeshakrishna/cliniccall-AI/internal/nlu"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/observability/metrics"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/providers"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/scheduling"
	"github.com/Avaneeshakrishna/cliniccall-AI/pkg/logging"
)

// DefaultDepartment is assumed when a provider is picked before any
// department is known.
const DefaultDepartment = scheduling.GeneralMedicine

const (
	menuSize       = 5
	minReasonWords = 2
)

// Turn is one inbound message plus optional structured hints. Hints
// overwrite session fields before text extraction runs.
type Turn struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	PatientID      string `json:"patient_id,omitempty"`
	PatientPhone   string `json:"patient_phone,omitempty"`
	PatientEmail   string `json:"patient_email,omitempty"`
	PatientName    string `json:"patient_name,omitempty"`
	// SelectedSlotID is a slot picked outside the conversation, e.g. from a
	// calendar widget.
	SelectedSlotID string `json:"selected_slot_id,omitempty"`
}

// SlotOption is a slot offered in a menu.
type SlotOption struct {
	ID         string    `json:"id"`
	Department string    `json:"department"`
	Provider   string    `json:"provider"`
	StartTime  time.Time `json:"start_time"`
	Label      string    `json:"label"`
}

// Response is the engine's reply to a Turn.
type Response struct {
	ConversationID     string               `json:"conversation_id"`
	Reply              string               `json:"reply"`
	Intent             nlu.Intent           `json:"intent"`
	Department         string               `json:"department,omitempty"`
	Reason             string               `json:"reason,omitempty"`
	SuggestedProviders []providers.Provider `json:"suggested_providers"`
	SuggestedSlots     []SlotOption         `json:"suggested_slots"`
	UrgentCaseID       string               `json:"urgent_case_id,omitempty"`
}

// ProviderSearcher finds providers near a ZIP code.
type ProviderSearcher interface {
	Search(ctx context.Context, department, zip string, limit int) ([]providers.Provider, providers.Tier)
}

// UrgentRecorder triages and records an urgent message.
type UrgentRecorder interface {
	Open(ctx context.Context, text, patientID string) (*scheduling.UrgentCase, nlu.TriageResult, error)
}

// TranscriptWriter appends turns to long-term history.
type TranscriptWriter interface {
	Append(ctx context.Context, conversationID, role, content string) error
}

// Engine resolves turns against a conversation frame. Each turn answers at
// most one pending question, checked in a fixed priority order; when none
// applies the message is classified from scratch.
type Engine struct {
	store      Store
	repo       scheduling.Repository
	ledger     *scheduling.SlotLedger
	booker     *scheduling.Booker
	calendar   *scheduling.Calendar
	classifier nlu.Classifier
	urgent     UrgentRecorder
	directory  ProviderSearcher
	notifier   scheduling.Notifier
	transcript TranscriptWriter
	metrics    *metrics.DialogMetrics
	logger     *logging.Logger
	tracer     trace.Tracer
}

type EngineOption func(*Engine)

func WithClassifier(c nlu.Classifier) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.classifier = c
		}
	}
}

func WithUrgentRecorder(u UrgentRecorder) EngineOption {
	return func(e *Engine) { e.urgent = u }
}

func WithProviderSearcher(s ProviderSearcher) EngineOption {
	return func(e *Engine) { e.directory = s }
}

func WithNotifier(n scheduling.Notifier) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

func WithTranscript(w TranscriptWriter) EngineOption {
	return func(e *Engine) { e.transcript = w }
}

func WithMetrics(m *metrics.DialogMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(store Store, repo scheduling.Repository, booker *scheduling.Booker, calendar *scheduling.Calendar, logger *logging.Logger, opts ...EngineOption) *Engine {
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if repo == nil {
		panic("conversation: scheduling repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if booker == nil {
		booker = scheduling.NewBooker(repo, logger)
	}
	if calendar == nil {
		calendar = scheduling.NewCalendar(repo, time.UTC)
	}
	e := &Engine{
		store:      store,
		repo:       repo,
		ledger:     scheduling.NewSlotLedger(repo),
		booker:     booker,
		calendar:   calendar,
		classifier: nlu.KeywordClassifier{},
		logger:     logger,
		tracer:     otel.Tracer("cliniccall.internal.conversation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// turn carries one turn's working state through the resolution steps.
type turn struct {
	in     Turn
	text   string
	st     *State
	resp   Response
	branch string
	// zipMentioned is set when this message carried a ZIP code.
	zipMentioned bool
	// fallback is the reported intent when the frame has none.
	fallback nlu.Intent
}

func (t *turn) reply(branch, text string) {
	t.branch = branch
	t.resp.Reply = text
}

// step inspects the turn and either replies (true) or passes (false).
type step struct {
	name string
	run  func(ctx context.Context, t *turn) (bool, error)
}

func (e *Engine) steps() []step {
	return []step{
		{"reason", e.captureReason},
		{"confirmation", e.resolveConfirmation},
		{"affirm_book", e.affirmBooking},
		{"patient", e.resolvePatient},
		{"appointment_menu", e.selectAppointment},
		{"provider_menu", e.selectProvider},
		{"department", e.resolveDepartment},
		{"slot_menu", e.selectSlot},
		{"location", e.searchByLocation},
		{"classify", e.classify},
	}
}

// HandleTurn resolves one message and persists the updated frame. The only
// errors returned are session store failures; every conversational outcome,
// including booking conflicts and collaborator outages, is a reply.
func (e *Engine) HandleTurn(ctx context.Context, in Turn) (Response, error) {
	ctx, span := e.tracer.Start(ctx, "conversation.handle_turn")
	defer span.End()

	id, st, err := e.store.GetOrCreate(ctx, in.ConversationID)
	if err != nil {
		span.RecordError(err)
		return Response{}, fmt.Errorf("conversation: load state: %w", err)
	}
	span.SetAttributes(attribute.String("conversation.id", id))

	t := &turn{in: in, text: strings.TrimSpace(in.Message), st: st, fallback: nlu.IntentOther}
	t.resp.ConversationID = id
	e.absorb(t)

	for _, s := range e.steps() {
		handled, err := s.run(ctx, t)
		if err != nil {
			span.RecordError(err)
			e.logger.Error("turn step failed", "conversation_id", id, "step", s.name, "error", err)
			t.reply("error", replyTryAgain)
			break
		}
		if handled {
			break
		}
	}
	e.finishResponse(t)
	e.metrics.ObserveTurn(t.branch)
	span.SetAttributes(attribute.String("conversation.branch", t.branch))

	if err := e.store.Save(ctx, id, t.st); err != nil {
		span.RecordError(err)
		return Response{}, fmt.Errorf("conversation: save state: %w", err)
	}
	e.recordTranscript(ctx, id, t.text, t.resp.Reply)
	return t.resp, nil
}

// absorb copies hints and extracted identifiers into the frame. The latest
// mention of a phone, email or ZIP wins.
func (e *Engine) absorb(t *turn) {
	st := t.st
	if v := strings.TrimSpace(t.in.PatientPhone); v != "" {
		st.PatientPhone = v
	}
	if v := strings.TrimSpace(t.in.PatientEmail); v != "" {
		st.PatientEmail = v
	}
	if v := strings.TrimSpace(t.in.PatientName); v != "" {
		st.PatientName = v
	}
	if phone := ExtractPhone(t.text); phone != "" {
		st.PatientPhone = phone
	}
	if email := ExtractEmail(t.text); email != "" {
		st.PatientEmail = email
	}
	if zip := ExtractZip(t.text); zip != "" {
		st.LocationZip = zip
		t.zipMentioned = true
	}
}

func (e *Engine) finishResponse(t *turn) {
	if t.resp.Intent == "" {
		t.resp.Intent = t.st.Intent
	}
	if t.resp.Intent == "" {
		t.resp.Intent = t.fallback
	}
	if t.resp.Department == "" {
		t.resp.Department = t.st.Department
	}
	t.resp.Reason = t.st.Reason
	if t.resp.SuggestedProviders == nil {
		t.resp.SuggestedProviders = []providers.Provider{}
	}
	if t.resp.SuggestedSlots == nil {
		t.resp.SuggestedSlots = []SlotOption{}
	}
}

func (e *Engine) recordTranscript(ctx context.Context, id, userText, reply string) {
	if e.transcript == nil {
		return
	}
	for _, msg := range [][2]string{{"user", userText}, {"assistant", reply}} {
		if err := e.transcript.Append(ctx, id, msg[0], msg[1]); err != nil {
			e.logger.Warn("transcript append failed", "conversation_id", id, "error", err)
			return
		}
	}
}

// isNotFound reports a stale reference that the engine recovers from.
func isNotFound(err error) bool {
	return errors.Is(err, scheduling.ErrNotFound)
}

func (e *Engine) formatTime(t time.Time) string {
	return e.calendar.Format(t)
}
