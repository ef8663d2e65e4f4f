// Package logevents implements [domain.EventSink] on structured logging.
package logevents

import (
	"github.com/sirupsen/logrus"

	"github.com/craxelfn/fleetpilot/internal/domain"
)

// Sink logs every controller event with structured fields.
type Sink struct {
	Log logrus.FieldLogger
}

func (s *Sink) Emit(event domain.Event) {
	fields := logrus.Fields{
		"type": event.Type,
		"at":   event.At,
	}
	if event.ReleaseID != "" {
		fields["release"] = event.ReleaseID
	}
	if event.MemberID != "" {
		fields["member"] = event.MemberID
	}
	if event.Phase != "" {
		fields["phase"] = event.Phase
	}
	if event.Reason != "" {
		fields["reason"] = event.Reason
	}
	if event.Decision != nil {
		fields["desiredCount"] = event.Decision.DesiredCount
		fields["signals"] = event.Decision.Signals
	}

	log := s.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	switch event.Type {
	case domain.EventSamplingFailed, domain.EventScaleCallFailed:
		log.WithFields(fields).Warn("controller event")
	default:
		log.WithFields(fields).Info("controller event")
	}
}
