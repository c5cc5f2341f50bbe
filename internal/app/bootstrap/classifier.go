package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/Avaneeshakrishna/cliniccall-AI/internal/config"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/nlu"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/observability/metrics"
	"github.com/Avaneeshakrishna/cliniccall-AI/pkg/logging"
)

// Classifier both classifies intents and grades urgent text.
type Classifier interface {
	nlu.Classifier
	nlu.Triager
}

// NeedsAWS reports whether cfg selects any AWS-backed collaborator.
func NeedsAWS(cfg *appconfig.Config) bool {
	if cfg == nil {
		return false
	}
	switch cfg.ClassifierProvider {
	case "bedrock", "auto":
		if cfg.BedrockModelID != "" {
			return true
		}
	}
	return cfg.EmailProvider == "ses" ||
		strings.TrimSpace(cfg.UrgentQueueURL) != "" ||
		strings.TrimSpace(cfg.SessionTable) != ""
}

// BuildClassifier wires the intent classifier selected by CLASSIFIER_PROVIDER:
// "bedrock", "gemini", "auto" (Bedrock with Gemini fallback) or "none" for
// keyword rules only. awsCfg may be nil when Bedrock is not selected.
func BuildClassifier(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, m *metrics.DialogMetrics, logger *logging.Logger) (Classifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var primary, fallback nlu.LLMClient
	switch cfg.ClassifierProvider {
	case "", "none", "keyword":
		logger.Info("using keyword intent classifier")
		return nlu.KeywordClassifier{}, nil
	case "bedrock", "auto":
		if cfg.BedrockModelID == "" {
			logger.Warn("bedrock classifier selected but BEDROCK_MODEL_ID empty; using keyword rules")
			return nlu.KeywordClassifier{}, nil
		}
		if awsCfg == nil {
			return nil, fmt.Errorf("bootstrap: aws config required for bedrock classifier")
		}
		primary = nlu.NewBedrockLLMClient(bedrockruntime.NewFromConfig(*awsCfg), cfg.BedrockModelID)
		if cfg.ClassifierProvider == "auto" && cfg.GeminiAPIKey != "" {
			gemini, err := nlu.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
			if err != nil {
				logger.Warn("gemini fallback unavailable", "error", err)
			} else {
				fallback = gemini
			}
		}
	case "gemini":
		gemini, err := nlu.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini classifier: %w", err)
		}
		primary = gemini
	default:
		return nil, fmt.Errorf("bootstrap: unknown classifier provider %q", cfg.ClassifierProvider)
	}

	client := nlu.LLMClient(primary)
	if fallback != nil {
		client = nlu.NewFallbackLLMClient(primary, fallback, logger)
	}
	logger.Info("using LLM intent classifier", "provider", cfg.ClassifierProvider, "fallback", fallback != nil)
	return nlu.NewLLMClassifier(client, logger).
		WithTimeout(cfg.ClassifierTimeout).
		WithMetrics(m), nil
}
