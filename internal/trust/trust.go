// Package trust maps reputation scores to trust levels.
//
// Trust levels gate how much weight the platform gives a user's price
// submissions. They are derived purely from the reputation score and
// recomputed on every reputation change, never stored independently
// of the score that produced them.
package trust

// Level is a human-readable trust tier.
type Level string

const (
	LevelNewbie      Level = "Newbie"      // 0-4: just registered
	LevelScout       Level = "Scout"       // 5-19: a few submissions
	LevelContributor Level = "Contributor" // 20-49: regular contributor
	LevelTrusted     Level = "Trusted"     // 50-199: proven track record
	LevelGuardian    Level = "Guardian"    // 200+: community pillar
)

// LevelFor returns the trust level for a reputation score.
// Pure and total over non-negative scores.
func LevelFor(reputation int) Level {
	switch {
	case reputation >= 200:
		return LevelGuardian
	case reputation >= 50:
		return LevelTrusted
	case reputation >= 20:
		return LevelContributor
	case reputation >= 5:
		return LevelScout
	default:
		return LevelNewbie
	}
}
