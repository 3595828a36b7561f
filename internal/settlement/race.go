package settlement

import (
	"strings"

	"github.com/MJE43/arenacore/internal/apperr"
	"github.com/MJE43/arenacore/internal/engine"
	"github.com/MJE43/arenacore/internal/sim"
)

// RaceModeKey separates race seeds from battle seeds.
const RaceModeKey = "race"

// RaceRequest asks for a seeded race. The seed is derived server-side from
// these fields, so a client can neither pick nor predict it without the key.
type RaceRequest struct {
	RequestID string            `json:"request_id"`
	OwnerID   string            `json:"owner_id"`
	TrackID   string            `json:"track_id"`
	Track     sim.Track         `json:"track"`
	Entrants  []sim.RaceEntrant `json:"entrants"`
}

// SimulateRace runs req's race. It touches no ledger and records nothing.
func (s *Service) SimulateRace(req RaceRequest) (sim.RaceResult, error) {
	if strings.TrimSpace(req.RequestID) == "" {
		return sim.RaceResult{}, apperr.Validation("request_id", "request id is required")
	}
	if strings.TrimSpace(req.OwnerID) == "" {
		return sim.RaceResult{}, apperr.Validation("owner_id", "owner id is required")
	}
	seed := engine.DeriveSeed(s.cfg.SeedKey, engine.SeedMessage{
		ActorID:   req.OwnerID,
		SubjectID: req.TrackID,
		ModeKey:   RaceModeKey,
		Arena:     RaceModeKey,
		RequestID: req.RequestID,
	})
	return sim.SimulateRace(req.Entrants, req.Track, seed)
}
