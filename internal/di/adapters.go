package di

import (
	"github.com/rs/zerolog"
)

// haltAnnouncer implements domain.BotStopper for deployments without
// external trading bots. The risk gate already rejects every trade while
// the kill switch is active, so the halt side effect is an operational
// log line. The circuit breaker stays an operator-only control.
type haltAnnouncer struct {
	log zerolog.Logger
}

func newHaltAnnouncer(log zerolog.Logger) *haltAnnouncer {
	return &haltAnnouncer{log: log.With().Str("component", "halt_announcer").Logger()}
}

func (h *haltAnnouncer) StopAllBots(reason string) error {
	h.log.Error().Str("reason", reason).Msg("Trading halt requested")
	return nil
}
