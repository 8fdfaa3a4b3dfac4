package learning

import (
	"math"

	"github.com/nathoo/npcmind/types"
)

const (
	// RewardThreshold is the smallest |affinity delta| that produces a reward.
	RewardThreshold = 0.1
	// RewardScale maps |delta| onto reward intensity before the cap at 1.
	RewardScale = 5.0
)

// AffinityReward converts the affinity change observed across a turn into a
// reward in [-1, 1]. Changes within ±RewardThreshold are treated as noise.
func AffinityReward(delta float64) float64 {
	if math.IsNaN(delta) || math.Abs(delta) <= RewardThreshold {
		return 0
	}
	intensity := math.Min(1, math.Abs(delta)*RewardScale)
	if delta < 0 {
		return -intensity
	}
	return intensity
}

// playerRewards rates how a player's reaction reflects on the NPC's last
// action. It is diagnostic only; weight updates use AffinityReward.
var playerRewards = map[types.PlayerKind]float64{
	types.PlayerGift:     1.0,
	types.PlayerPraise:   0.8,
	types.PlayerHelp:     0.6,
	types.PlayerTalk:     0.1,
	types.PlayerInsult:   -0.8,
	types.PlayerThreaten: -0.9,
	types.PlayerPunch:    -1.0,
	types.PlayerTheft:    -0.7,
}

// PlayerReward returns the diagnostic reward for a player reaction.
func PlayerReward(kind types.PlayerKind) float64 {
	return playerRewards[kind]
}
