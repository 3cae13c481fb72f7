// Package notify carries coordinator events to the local log. A real
// UI process would subscribe here; the daemon ships with a log sink so
// every call transition is still observable.
package notify

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/akorolev/Dial/internal/domain"
	"github.com/akorolev/Dial/internal/signal"
)

type LogEvents struct {
	log zerolog.Logger
}

func NewLogEvents() *LogEvents {
	return &LogEvents{log: log.With().Str("module", "notify").Logger()}
}

func (e *LogEvents) IncomingCall(sid uuid.UUID, peer domain.Peer) {
	e.log.Info().
		Str("session", sid.String()).
		Str("peer", string(peer.ID)).
		Str("username", peer.Username).
		Msg("incoming call")
}

func (e *LogEvents) CallConnected(sid uuid.UUID) {
	e.log.Info().Str("session", sid.String()).Msg("call connected")
}

func (e *LogEvents) CallEnded(sid uuid.UUID, category signal.Category, cause error) {
	evt := e.log.Info().
		Str("session", sid.String()).
		Str("category", string(category))
	if cause != nil {
		evt = evt.Err(cause)
	}
	evt.Msg("call ended")
}

func (e *LogEvents) AudioRouteChanged(speaker bool) {
	e.log.Info().Bool("speaker", speaker).Msg("audio route changed")
}

func (e *LogEvents) PromptMicrophoneAccess() {
	e.log.Warn().Msg("microphone access required")
}

// LogReporter is the diagnostic sink for call errors. Swap for a crash
// reporter in deployments that have one.
type LogReporter struct {
	log zerolog.Logger
}

func NewLogReporter() *LogReporter {
	return &LogReporter{log: log.With().Str("module", "report").Logger()}
}

func (r *LogReporter) ReportError(sid uuid.UUID, err error) {
	r.log.Error().Err(err).Str("session", sid.String()).Msg("call error")
}
