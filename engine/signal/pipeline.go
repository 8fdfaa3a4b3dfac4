package signal

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/nathoo/npcmind/engine/state"
	"github.com/nathoo/npcmind/types"
)

const (
	provenanceSalience = 0.3
	provenanceMaxKeys  = 6
	provenanceMaxChars = 240
)

// Result is everything the pipeline derived from one boundary event.
type Result struct {
	Event      types.EnvironmentEvent
	Signals    []types.Signal
	Normalized []types.NormalizedSignal
	Events     []types.StateEvent
}

// Pipeline chains the adapter, mapper and normalizer. It never reads or
// writes NPC state.
type Pipeline struct {
	Adapter    *Adapter
	Mapper     Mapper
	Normalizer *Normalizer
}

// NewPipeline creates a pipeline with the given normalizer constants.
func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{
		Adapter:    NewAdapter(),
		Normalizer: NewNormalizer(cfg),
	}
}

// Process validates raw and derives the state events it implies.
func (p *Pipeline) Process(raw RawEvent) (Result, error) {
	ev, err := p.Adapter.Validate(raw)
	if err != nil {
		return Result{}, err
	}
	return p.ProcessEvent(ev), nil
}

// ProcessEvent derives state events from an already validated event.
func (p *Pipeline) ProcessEvent(ev types.EnvironmentEvent) Result {
	signals := p.Mapper.Map(ev)
	batch := p.Normalizer.NormalizeBatch(signals)
	return Result{
		Event:      ev,
		Signals:    signals,
		Normalized: batch,
		Events:     Translate(ev, batch),
	}
}

// Translate turns a normalized batch into the state events to dispatch,
// in a fixed order: provenance fact, affinity, mood, relationships, time.
func Translate(ev types.EnvironmentEvent, batch []types.NormalizedSignal) []types.StateEvent {
	ts := ev.Timestamp
	prov := state.FactAdd(provenance(ev), provenanceSalience, []string{"env", ev.Type}, ts)
	prov.Tag = "env:" + ev.Type
	out := []types.StateEvent{prov}

	if d := CombinedAffinity(batch); d != 0 {
		out = append(out, state.AffinityDelta(d, ts))
	}
	if m := StrongestMood(batch); m != "" {
		out = append(out, state.MoodSet(m, ts))
	}
	for _, rd := range CombinedRelationships(batch) {
		out = append(out, state.RelationshipDelta(rd.Kind, rd.Delta, ts))
	}
	if ev.Type == "time_passed" {
		hours := 1.0
		if h, ok := number(ev.Payload["hours"]); ok {
			hours = h
		}
		out = append(out, state.TimePassed(hours, ts))
	}
	return out
}

// provenance renders "[env] type: k=v, ..." with keys sorted.
func provenance(ev types.EnvironmentEvent) string {
	keys := make([]string, 0, len(ev.Payload))
	for k := range ev.Payload {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	if len(keys) > provenanceMaxKeys {
		keys = keys[:provenanceMaxKeys]
	}

	var b strings.Builder
	b.WriteString("[env] ")
	b.WriteString(ev.Type)
	for i, k := range keys {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", k, ev.Payload[k])
	}
	text := state.StripControl(strings.ToValidUTF8(b.String(), "\uFFFD"))
	if len(text) > provenanceMaxChars {
		cut := provenanceMaxChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}
