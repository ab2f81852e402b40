package predictor

import (
	"context"
	"log/slog"

	"github.com/airsight/air-quality-pipeline/internal/domain"
)

// LogNotifier records alerts in the service log. Actual delivery (email,
// webhooks) belongs to the external notification collaborator; this is
// the default wiring when none is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, recipient domain.AlertRecipient, alert Alert) error {
	n.logger.Info("pollution alert",
		"recipient", recipient.Email,
		"location", alert.Location,
		"pollutant", alert.Pollutant,
		"value", alert.Value,
		"threshold", alert.Threshold,
		"time", alert.Time,
	)
	return nil
}
