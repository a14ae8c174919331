package insights

import (
	"context"

	"github.com/platformbuilds/fleetwatch-core/internal/models"
	"github.com/platformbuilds/fleetwatch-core/pkg/logger"
)

// Sink receives high/critical insights for downstream automation. A real
// deployment plugs a ticketing or remediation system in here; Dispatch may
// return a ticket reference which the generator links back onto the insight.
type Sink interface {
	Dispatch(ctx context.Context, insight *models.Insight) (ticket string, err error)
}

// LoggingSink is the built-in sink: it logs the insight and opens nothing.
type LoggingSink struct {
	logger logger.Logger
}

func NewLoggingSink(log logger.Logger) *LoggingSink {
	return &LoggingSink{logger: log}
}

func (s *LoggingSink) Dispatch(_ context.Context, insight *models.Insight) (string, error) {
	s.logger.Warn("automation-worthy insight",
		"device_id", insight.DeviceID,
		"type", insight.Type,
		"metric", insight.Metric,
		"severity", insight.Severity,
		"title", insight.Title)
	return "", nil
}
