package ranker

import "strings"

// Profile selects one of the built-in ranking weight vectors. The set is
// closed: profiles are code, not configuration, so every deployment ranks
// the same way for a given profile name.
type Profile int

const (
	// ProfileBalanced blends lexical relevance with usage history.
	ProfileBalanced Profile = iota
	// ProfilePrecision ranks almost purely on lexical relevance, for
	// error-code lookups where popularity is noise.
	ProfilePrecision
	// ProfileMainframeFocused amplifies domain-token weight so records
	// anchored on error codes and subsystem keywords rise further.
	ProfileMainframeFocused
)

func (p Profile) String() string {
	switch p {
	case ProfilePrecision:
		return "precision"
	case ProfileMainframeFocused:
		return "mainframe"
	default:
		return "balanced"
	}
}

// ParseProfile maps a profile name to its Profile. Unknown or empty names
// report ok=false with the balanced default, so callers degrade instead of
// failing the query.
func ParseProfile(name string) (Profile, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "balanced":
		return ProfileBalanced, true
	case "precision":
		return ProfilePrecision, true
	case "mainframe", "mainframe-focused", "mainframe_focused":
		return ProfileMainframeFocused, true
	default:
		return ProfileBalanced, false
	}
}

// weights is a profile's component weight vector. Lexical, Usage, Success
// and Taxonomy weight the four score components; DomainBoost scales how much
// the matched tokens' domain weight amplifies the lexical component.
type weights struct {
	Lexical     float64
	Usage       float64
	Success     float64
	Taxonomy    float64
	DomainBoost float64
}

func (p Profile) weights() weights {
	switch p {
	case ProfilePrecision:
		return weights{Lexical: 0.8, Usage: 0.05, Success: 0.05, Taxonomy: 0.1, DomainBoost: 1.0}
	case ProfileMainframeFocused:
		return weights{Lexical: 0.5, Usage: 0.15, Success: 0.15, Taxonomy: 0.1, DomainBoost: 1.5}
	default:
		return weights{Lexical: 0.5, Usage: 0.2, Success: 0.2, Taxonomy: 0.1, DomainBoost: 1.0}
	}
}
