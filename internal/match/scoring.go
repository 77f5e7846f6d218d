package match

// HitLocation is the body zone an arrow struck, as resolved by the
// engine-side geometry collaborator.
type HitLocation string

const (
	HitHeart HitLocation = "heart"
	HitHead  HitLocation = "head"
	HitTorso HitLocation = "torso"
	HitArm   HitLocation = "arm"
	HitLeg   HitLocation = "leg"
	HitMount HitLocation = "mount"
	HitMiss  HitLocation = "miss"
)

func ParseHitLocation(s string) (HitLocation, bool) {
	switch HitLocation(s) {
	case HitHeart, HitHead, HitTorso, HitArm, HitLeg, HitMount, HitMiss:
		return HitLocation(s), true
	default:
		return "", false
	}
}

// ScoringConfig maps hit locations to point awards. Fixed for the duration
// of a match.
type ScoringConfig struct {
	Heart int `json:"heart"`
	Head  int `json:"head"`
	Torso int `json:"torso"`
	Arm   int `json:"arm"`
	Leg   int `json:"leg"`
	Mount int `json:"mount"`
}

func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Heart: 100,
		Head:  50,
		Torso: 30,
		Arm:   10,
		Leg:   10,
		Mount: 5,
	}
}

// GetScore returns the award for a location. The switch is exhaustive over
// HitLocation so a new zone fails loudly here rather than scoring zero.
func (c ScoringConfig) GetScore(loc HitLocation) int {
	switch loc {
	case HitHeart:
		return c.Heart
	case HitHead:
		return c.Head
	case HitTorso:
		return c.Torso
	case HitArm:
		return c.Arm
	case HitLeg:
		return c.Leg
	case HitMount:
		return c.Mount
	case HitMiss:
		return 0
	}
	return 0
}
