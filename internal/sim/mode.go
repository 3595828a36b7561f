// Package sim holds the pure battle and race engines. Every outcome is a
// function of its inputs and seed alone.
package sim

// ModeSpec describes a simulation mode.
type ModeSpec struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MetricLabel string `json:"metric_label"`
	Draws       string `json:"draws"`
}

var modes = []ModeSpec{
	{ID: "battle", Name: "Battle", MetricLabel: "score", Draws: "1"},
	{ID: "race", Name: "Race", MetricLabel: "position", Draws: "1 per entrant"},
}

// ListModes returns the registered simulation modes.
func ListModes() []ModeSpec {
	out := make([]ModeSpec, len(modes))
	copy(out, modes)
	return out
}

// GetMode looks up a mode by id.
func GetMode(id string) (ModeSpec, bool) {
	for _, m := range modes {
		if m.ID == id {
			return m, true
		}
	}
	return ModeSpec{}, false
}
