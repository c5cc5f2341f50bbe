package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Avaneeshakrishna/cliniccall-AI/internal/observability/metrics"
	"github.com/Avaneeshakrishna/cliniccall-AI/pkg/logging"
)

// Classifier maps free text to an intent. It never fails.
type Classifier interface {
	Classify(ctx context.Context, text string) IntentResult
}

// Triager grades urgent text. It never fails.
type Triager interface {
	Triage(ctx context.Context, text string) TriageResult
}

const (
	intentSystemPrompt = "You are an AI receptionist for a clinic. Extract intent/department/reason. " +
		"Return JSON only with keys intent (BOOK, RESCHEDULE, CANCEL, FAQ, URGENT or OTHER), " +
		"department (Dermatology, Cardiology, General Medicine, Pediatrics, Orthopedics or null) and reason."
	triageSystemPrompt = "You are an AI receptionist for a clinic. Extract triage severity, summary, " +
		"and whether to escalate. Return JSON only with keys severity (EMERGENCY, URGENT or ROUTINE), " +
		"summary and escalate (boolean)."

	defaultClassifierTimeout = 15 * time.Second
)

// LLMClassifier asks a model for intent and triage, falling back to the
// keyword rules on any error, timeout or malformed answer.
type LLMClassifier struct {
	client  LLMClient
	model   string
	timeout time.Duration
	logger  *logging.Logger
	metrics *metrics.DialogMetrics
	tracer  trace.Tracer
}

// NewLLMClassifier builds a classifier. A nil client always uses the fallback.
func NewLLMClassifier(client LLMClient, logger *logging.Logger) *LLMClassifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LLMClassifier{
		client:  client,
		timeout: defaultClassifierTimeout,
		logger:  logger,
		tracer:  otel.Tracer("cliniccall.internal.nlu"),
	}
}

func (c *LLMClassifier) WithModel(model string) *LLMClassifier {
	c.model = model
	return c
}

func (c *LLMClassifier) WithTimeout(timeout time.Duration) *LLMClassifier {
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

func (c *LLMClassifier) WithMetrics(m *metrics.DialogMetrics) *LLMClassifier {
	c.metrics = m
	return c
}

// Classify returns the model's intent or the keyword fallback.
func (c *LLMClassifier) Classify(ctx context.Context, text string) IntentResult {
	raw, reason := c.ask(ctx, "classifier", intentSystemPrompt, text)
	if reason == "" {
		if result, ok := normalizeIntent(raw); ok {
			return result
		}
		reason = "normalize_failed"
	}
	c.fallback("classifier", reason)
	return KeywordIntent(text)
}

// Triage returns the model's grading or the keyword fallback.
func (c *LLMClassifier) Triage(ctx context.Context, text string) TriageResult {
	raw, reason := c.ask(ctx, "triage", triageSystemPrompt, text)
	if reason == "" {
		if result, ok := normalizeTriage(raw); ok {
			return result
		}
		reason = "normalize_failed"
	}
	c.fallback("triage", reason)
	return KeywordTriage(text)
}

// ask returns the first JSON object in the model's answer, or a non-empty
// fallback reason.
func (c *LLMClassifier) ask(ctx context.Context, name, system, text string) (map[string]any, string) {
	if c.client == nil {
		return nil, "no_client"
	}
	ctx, span := c.tracer.Start(ctx, "nlu."+name)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.Complete(ctx, LLMRequest{
		Model:       c.model,
		System:      []string{system},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: text}},
		MaxTokens:   300,
		Temperature: 0,
	})
	c.metrics.ObserveExternalCall(name, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, "timeout"
		}
		c.logger.Warn("model call failed", "collaborator", name, "error", err)
		return nil, "error"
	}
	raw, ok := ExtractFirstJSON(resp.Text)
	if !ok {
		span.SetAttributes(attribute.Bool("nlu.json_parse_failed", true))
		return nil, "json_parse_failed"
	}
	return raw, ""
}

func (c *LLMClassifier) fallback(name, reason string) {
	c.metrics.ObserveFallback(name, reason)
	c.logger.Warn("using keyword fallback", "collaborator", name, "reason", reason)
}

// ExtractFirstJSON decodes the first balanced {...} object in text.
func ExtractFirstJSON(text string) (map[string]any, bool) {
	depth, start := 0, -1
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				var out map[string]any
				if err := json.Unmarshal([]byte(text[start:i+1]), &out); err != nil {
					return nil, false
				}
				return out, true
			}
		}
	}
	return nil, false
}

// KeywordClassifier is a Classifier and Triager using only the keyword rules.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(_ context.Context, text string) IntentResult {
	return KeywordIntent(text)
}

func (KeywordClassifier) Triage(_ context.Context, text string) TriageResult {
	return KeywordTriage(text)
}
