package learning

import (
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/nathoo/npcmind/engine/decision"
	"github.com/nathoo/npcmind/types"
)

// FeatureSchemaVersion changes whenever the feature layout does. Saved
// bandit parameters from another schema are discarded.
const FeatureSchemaVersion = 1

const (
	tagBuckets  = 8
	bandOffset  = 1
	moodOffset  = bandOffset + 5
	tagOffset   = moodOffset + 17
	NumFeatures = tagOffset + tagBuckets
)

// Features is a fixed-size context encoding: bias, affinity band one-hot,
// mood one-hot and hashed recent tags.
type Features [NumFeatures]float64

// Encode builds features from raw state inputs.
func Encode(affinity float64, mood types.Mood, tags []string) Features {
	return encode(decision.Band(affinity), mood, decision.RecentTags(tags))
}

// EncodeKey rebuilds features from a context key. A decision only records
// its key, so feedback uses this to recover the features it was made under.
func EncodeKey(key string) Features {
	var band string
	var mood types.Mood
	var tags []string
	for _, part := range strings.Split(key, "|") {
		name, val, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		switch name {
		case "aff":
			band = val
		case "mood":
			mood = types.Mood(val)
		case "recent":
			tags = splitTags(val)
		}
	}
	return encode(band, mood, tags)
}

// splitTags undoes the comma join. Tags themselves contain colons, so only
// commas separate them.
func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func encode(band string, mood types.Mood, tags []string) Features {
	var f Features
	f[0] = 1
	for i, b := range decision.Bands {
		if b == band {
			f[bandOffset+i] = 1
		}
	}
	for i, m := range types.Moods {
		if strings.EqualFold(string(m), string(mood)) {
			f[moodOffset+i] = 1
		}
	}
	for _, t := range tags {
		f[tagOffset+int(xxhash.Sum64String(t)%tagBuckets)] += 1
	}
	return f
}
