package service

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aibanking/lending-assistant/internal/utils"
)

// EventLog emits the structured per-step records every component reports
// through. Records are written synchronously, so they are on the sink before
// the step returns to its caller.
//
// PII rules: raw message text, account numbers, and customer names never
// appear in a record. Callers pass SHA-256 hashes (utils.HashText) and counts.
type EventLog struct {
	logger zerolog.Logger
}

// NewEventLog creates an event log writing through the global logger.
func NewEventLog() *EventLog {
	return &EventLog{logger: log.Logger}
}

// Event is one in-flight record; fields accumulate via the With* methods and
// the record is written by Emit.
type Event struct {
	logger    zerolog.Logger
	requestID string
	component string
	eventType string
	start     time.Time
	fields    map[string]any
	err       error
	severity  string
}

// Begin opens a record for one step of a turn. Duration is measured from this
// call until Emit.
func (e *EventLog) Begin(requestID, component, eventType string) *Event {
	return &Event{
		logger:    e.logger,
		requestID: requestID,
		component: component,
		eventType: eventType,
		start:     time.Now(),
		fields:    make(map[string]any),
		severity:  "INFO",
	}
}

// WithField attaches a metadata field. The value must already be PII-safe.
func (ev *Event) WithField(key string, value any) *Event {
	ev.fields[key] = value
	return ev
}

// WithTextHash attaches the SHA-256 of raw text under key.
func (ev *Event) WithTextHash(key, text string) *Event {
	ev.fields[key] = utils.HashText(text)
	return ev
}

// WithError marks the record as an error record.
func (ev *Event) WithError(err error) *Event {
	ev.err = err
	ev.severity = "ERROR"
	return ev
}

// Warn downgrades the record to a warning.
func (ev *Event) Warn() *Event {
	ev.severity = "WARN"
	return ev
}

// Emit writes the record.
func (ev *Event) Emit() {
	var rec *zerolog.Event
	switch ev.severity {
	case "ERROR":
		rec = ev.logger.Error().Err(ev.err)
	case "WARN":
		rec = ev.logger.Warn()
	default:
		rec = ev.logger.Info()
	}

	rec = rec.
		Str("request_id", ev.requestID).
		Str("component", ev.component).
		Str("event_type", ev.eventType).
		Str("severity", ev.severity).
		Float64("duration_ms", float64(time.Since(ev.start).Microseconds())/1000.0)

	for k, v := range ev.fields {
		rec = rec.Interface(k, v)
	}

	rec.Msg(ev.eventType)
}
