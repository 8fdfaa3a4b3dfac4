package events

import (
	"testing"

	"github.com/nathoo/npcmind/types"
)

func TestPublish_DeliversInSubscriptionOrder(t *testing.T) {
	b := NewBus()
	var got []string
	b.Subscribe(func(c Commit) { got = append(got, "first:"+c.NPCID) })
	b.Subscribe(func(c Commit) { got = append(got, "second:"+c.NPCID) })

	b.Publish(Commit{NPCID: "lydia"})

	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	if got[0] != "first:lydia" || got[1] != "second:lydia" {
		t.Errorf("unexpected delivery order: %v", got)
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	b := NewBus()
	count := 0
	cancel := b.Subscribe(func(Commit) { count++ })

	b.Publish(Commit{})
	cancel()
	b.Publish(Commit{})

	if count != 1 {
		t.Errorf("expected 1 delivery after unsubscribe, got %d", count)
	}
}

func TestPublish_NoSubscribers(t *testing.T) {
	b := NewBus()
	// Must not panic.
	b.Publish(Commit{NPCID: "nobody"})
}

func TestPublish_CarriesBatch(t *testing.T) {
	b := NewBus()
	var seen Commit
	b.Subscribe(func(c Commit) { seen = c })

	b.Publish(Commit{
		NPCID:  "lydia",
		Events: []types.StateEvent{{Type: types.EventMoodSet, Mood: types.MoodWarm}},
		State:  types.NPCState{NPCID: "lydia", Mood: types.MoodWarm},
	})

	if len(seen.Events) != 1 || seen.Events[0].Mood != types.MoodWarm {
		t.Errorf("expected mood_set event in commit, got %v", seen.Events)
	}
	if seen.State.Mood != types.MoodWarm {
		t.Errorf("expected committed mood warm, got %q", seen.State.Mood)
	}
}
