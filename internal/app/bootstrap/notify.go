package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/Avaneeshakrishna/cliniccall-AI/internal/config"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/nlu"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/notify"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/observability/metrics"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/providers"
	"github.com/Avaneeshakrishna/cliniccall-AI/pkg/logging"
)

// BuildEmailSender picks the confirmation email transport. Misconfigured
// providers degrade to the logging stub.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger)
	}
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			logger.Info("confirmation email via sendgrid")
			return sender
		}
		logger.Warn("sendgrid selected but SENDGRID_API_KEY empty; using stub email sender")
	case "ses":
		if awsCfg != nil {
			logger.Info("confirmation email via ses")
			return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
				FromEmail: cfg.EmailFrom,
				FromName:  cfg.EmailFromName,
			}, logger)
		}
		logger.Warn("ses selected without aws config; using stub email sender")
	}
	return notify.NewStubEmailSender(logger)
}

// BuildEscalationPublisher returns the SQS publisher for escalated urgent
// cases, or nil when URGENT_QUEUE_URL is unset.
func BuildEscalationPublisher(cfg *appconfig.Config, awsCfg *aws.Config) nlu.EscalationPublisher {
	if cfg == nil || awsCfg == nil || strings.TrimSpace(cfg.UrgentQueueURL) == "" {
		return nil
	}
	return notify.NewSQSEscalationPublisher(sqs.NewFromConfig(*awsCfg), cfg.UrgentQueueURL)
}

// BuildDirectory wires the NPI-backed provider directory. An empty
// NPI_BASE_URL disables provider discovery.
func BuildDirectory(cfg *appconfig.Config, m *metrics.DialogMetrics, logger *logging.Logger) (*providers.Directory, error) {
	if cfg == nil || strings.TrimSpace(cfg.NPIBaseURL) == "" {
		return nil, nil
	}
	client := providers.NewNPIClient(providers.NPIClientOptions{
		NPIBaseURL: cfg.NPIBaseURL,
		ZipBaseURL: cfg.ZipLookupBaseURL,
		Timeout:    cfg.ProviderTimeout,
		RatePerSec: cfg.ProviderRatePerSec,
	}, logger)
	dir, err := providers.NewDirectory(client, cfg.ProviderCacheSize, logger)
	if err != nil {
		return nil, err
	}
	return dir.WithMetrics(m), nil
}
