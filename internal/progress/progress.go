// Package progress delivers pipeline stage notifications to logs and NATS.
package progress

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/FranksOps/eventradar/internal/pipeline"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix prefixes NATS subjects; the run ID is appended.
const DefaultSubjectPrefix = "eventradar.progress"

// Log returns a sink that writes each notification to logger at info level.
func Log(logger *slog.Logger) pipeline.ProgressFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(p pipeline.Progress) {
		logger.Info("progress", "run_id", p.RunID, "stage", p.Stage, "fraction", p.Fraction, "message", p.Message)
	}
}

// Multi fans a notification out to every non-nil sink in order.
func Multi(sinks ...pipeline.ProgressFunc) pipeline.ProgressFunc {
	return func(p pipeline.Progress) {
		for _, s := range sinks {
			if s != nil {
				s(p)
			}
		}
	}
}

// Publisher is the subset of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes notifications as JSON on "<prefix>.<run id>".
type NATSSink struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
}

// NewNATSSink wraps pub. An empty prefix uses DefaultSubjectPrefix.
func NewNATSSink(pub Publisher, prefix string, logger *slog.Logger) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSink{pub: pub, prefix: prefix, logger: logger}
}

// Connect dials a NATS server and returns a sink on it plus a close func.
func Connect(url, prefix string, logger *slog.Logger) (*NATSSink, func(), error) {
	nc, err := nats.Connect(url, nats.Name("eventradar"))
	if err != nil {
		return nil, nil, fmt.Errorf("progress: nats connect %s: %w", url, err)
	}
	return NewNATSSink(nc, prefix, logger), nc.Close, nil
}

// Subject returns the subject notifications for runID are published on.
func (s *NATSSink) Subject(runID string) string {
	return s.prefix + "." + runID
}

// Send publishes p. Delivery is best effort; failures are logged.
func (s *NATSSink) Send(p pipeline.Progress) {
	data, err := json.Marshal(p)
	if err != nil {
		s.logger.Warn("progress: encode", "err", err)
		return
	}
	if err := s.pub.Publish(s.Subject(p.RunID), data); err != nil {
		s.logger.Warn("progress: publish failed", "run_id", p.RunID, "err", err)
	}
}
