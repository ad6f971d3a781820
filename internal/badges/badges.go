// Package badges holds the static badge catalog.
//
// A badge is a one-time-per-user achievement marker. The catalog maps
// badge keys to display metadata; awarding logic lives in the reputation
// ledger, which treats keys missing from the catalog as a silent no-op
// so that old clients and new servers can drift without breaking.
package badges

// Definition is the display metadata for a badge key.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Badge keys awarded by the reputation ledger and admin endpoints.
const (
	FirstSubmission     = "first_submission"
	TenContributions    = "ten_contributions"
	FiftyContributions  = "fifty_contributions"
	TrustedUser         = "trusted_user"
	StationCreator      = "station_creator"
	VerifiedContributor = "verified_contributor"
	ModeratorCandidate  = "moderator_candidate"
)

// catalog is built once at init and never mutated.
var catalog = map[string]Definition{
	FirstSubmission: {
		Name:        "First Drop",
		Description: "Made your first price submission",
	},
	TenContributions: {
		Name:        "Active Contributor",
		Description: "Made 10 price submissions",
	},
	FiftyContributions: {
		Name:        "Veteran Reporter",
		Description: "Made 50 price submissions",
	},
	TrustedUser: {
		Name:        "Trusted User",
		Description: "Reached 100+ reputation and earned community trust",
	},
	StationCreator: {
		Name:        "Pathfinder",
		Description: "Added a station nobody had mapped before",
	},
	VerifiedContributor: {
		Name:        "Verified Contributor",
		Description: "Had 5 submissions verified by moderators",
	},
	ModeratorCandidate: {
		Name:        "Moderator Candidate",
		Description: "Reached 500+ reputation and is eligible for moderation duty",
	},
}

// Lookup returns the definition for a badge key.
func Lookup(key string) (Definition, bool) {
	def, ok := catalog[key]
	return def, ok
}

// All returns a copy of the full catalog for the public definitions endpoint.
func All() map[string]Definition {
	out := make(map[string]Definition, len(catalog))
	for k, v := range catalog {
		out[k] = v
	}
	return out
}
