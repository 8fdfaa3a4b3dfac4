// Package save implements JSON serialization and deserialization of NPC
// runtime state.
package save

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/nathoo/npcmind/engine/state"
	"github.com/nathoo/npcmind/types"
)

// Version is the save format written by Save.
const Version = 1

// SaveData is the JSON-serializable save format.
type SaveData struct {
	Version int       `json:"version"`
	Title   string    `json:"title"`
	NPCs    []NPCSave `json:"npcs"`
}

// NPCSave is one NPC's state plus where its RNG stream stood.
type NPCSave struct {
	State       types.NPCState `json:"state"`
	RNGSeed     int64          `json:"rng_seed"`
	RNGPosition int64          `json:"rng_position"`
}

// Save serializes NPC snapshots to JSON bytes, ordered by NPC id.
func Save(defs *state.Defs, npcs []NPCSave) ([]byte, error) {
	sorted := slices.Clone(npcs)
	slices.SortFunc(sorted, func(a, b NPCSave) int {
		switch {
		case a.State.NPCID < b.State.NPCID:
			return -1
		case a.State.NPCID > b.State.NPCID:
			return 1
		}
		return 0
	})
	data := SaveData{
		Version: Version,
		Title:   defs.Settings.Title,
		NPCs:    sorted,
	}
	if data.NPCs == nil {
		data.NPCs = []NPCSave{}
	}
	return json.MarshalIndent(data, "", "  ")
}

// Load deserializes JSON bytes into SaveData.
func Load(data []byte) (*SaveData, error) {
	var sd SaveData
	if err := json.Unmarshal(data, &sd); err != nil {
		return nil, err
	}
	if sd.Version != Version {
		return nil, fmt.Errorf("unsupported save version %d", sd.Version)
	}
	// Ensure slices are never nil after load.
	if sd.NPCs == nil {
		sd.NPCs = []NPCSave{}
	}
	for i := range sd.NPCs {
		st := &sd.NPCs[i].State
		if st.Facts == nil {
			st.Facts = []types.Fact{}
		}
		if st.RecentTags == nil {
			st.RecentTags = []string{}
		}
		if st.Mood == "" {
			st.Mood = types.MoodNeutral
		}
	}
	return &sd, nil
}

// Find returns the save entry for npcID.
func (sd *SaveData) Find(npcID string) (NPCSave, bool) {
	for _, n := range sd.NPCs {
		if n.State.NPCID == npcID {
			return n, true
		}
	}
	return NPCSave{}, false
}
