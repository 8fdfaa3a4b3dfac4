package save

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nathoo/npcmind/engine/state"
	"github.com/nathoo/npcmind/types"
)

func testDefs() *state.Defs {
	return &state.Defs{
		Settings: state.Settings{Title: "Test Village"},
		NPCs: map[string]types.NPCDef{
			"lydia": {ID: "lydia", Name: "Lydia", Affinity: 0.5, Mood: types.MoodNeutral},
		},
		Order: []string{"lydia"},
	}
}

func TestRoundTrip(t *testing.T) {
	defs := testDefs()
	s := state.NewState(defs.NPCs["lydia"], state.DefaultLimits())

	// Modify state.
	s.Affinity = 0.62
	s.Mood = types.MoodPleased
	s.RecentTags = []string{"player:gift"}
	s.Relationship.Trust = 0.7
	s.LastAction = &types.ActionRecord{Action: "ACT_OFFER_QUEST", Style: types.StyleWarm, ContextKey: "aff:+|mood:pleased", AffinityAtChoice: 0.5, Turn: 3}
	s.Turn = 3
	s.Seq = 11

	// Save.
	data, err := Save(defs, []NPCSave{{State: s, RNGSeed: 42, RNGPosition: 9}})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Load.
	sd, err := Load(data)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	got, ok := sd.Find("lydia")
	if !ok {
		t.Fatal("expected lydia in save")
	}
	if diff := cmp.Diff(s, got.State); diff != "" {
		t.Errorf("state mismatch (-saved +loaded):\n%s", diff)
	}
	if got.RNGSeed != 42 || got.RNGPosition != 9 {
		t.Errorf("expected rng 42@9, got %d@%d", got.RNGSeed, got.RNGPosition)
	}
}

func TestSave_ProducesValidJSON(t *testing.T) {
	defs := testDefs()

	data, err := Save(defs, nil)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if !json.Valid(data) {
		t.Fatal("Save output is not valid JSON")
	}

	// Verify metadata.
	var raw map[string]any
	json.Unmarshal(data, &raw)
	if raw["version"] != float64(Version) {
		t.Errorf("expected version %d, got %v", Version, raw["version"])
	}
	if raw["title"] != "Test Village" {
		t.Errorf("expected title 'Test Village', got %v", raw["title"])
	}
	if npcs, ok := raw["npcs"].([]any); !ok || len(npcs) != 0 {
		t.Errorf("expected empty npcs list, got %v", raw["npcs"])
	}
}

func TestSave_SortedByID(t *testing.T) {
	data, err := Save(testDefs(), []NPCSave{
		{State: types.NPCState{NPCID: "zed"}},
		{State: types.NPCState{NPCID: "abe"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	sd, _ := Load(data)
	if sd.NPCs[0].State.NPCID != "abe" || sd.NPCs[1].State.NPCID != "zed" {
		t.Errorf("expected sorted ids, got %s, %s", sd.NPCs[0].State.NPCID, sd.NPCs[1].State.NPCID)
	}
}

func TestLoad_MissingOptionalFields(t *testing.T) {
	// Minimal JSON, only required fields.
	data := []byte(`{"version":1,"title":"Test","npcs":[{"state":{"npc_id":"lydia","affinity":0.1}}]}`)

	sd, err := Load(data)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	st := sd.NPCs[0].State
	if st.Facts == nil {
		t.Error("expected non-nil facts")
	}
	if st.RecentTags == nil {
		t.Error("expected non-nil recent tags")
	}
	if st.Mood != types.MoodNeutral {
		t.Errorf("expected neutral mood, got %q", st.Mood)
	}
}

func TestLoad_WrongVersion(t *testing.T) {
	if _, err := Load([]byte(`{"version":7,"npcs":[]}`)); err == nil {
		t.Error("expected error for unsupported version")
	}
	if _, err := Load([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed json")
	}
}
