// Package loader loads Lua roster files into Go structs at startup.
// The Lua VM is discarded after loading; nothing runs Lua per turn.
package loader

import (
	"fmt"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/nathoo/npcmind/engine/state"
	"github.com/nathoo/npcmind/types"
)

// rawNPC holds an NPC table before compilation.
type rawNPC struct {
	id    string
	where string
	table *lua.LTable
}

// getString returns a string field from a Lua table, or "" if missing.
func getString(tbl *lua.LTable, key string) string {
	v := tbl.RawGetString(key)
	if s, ok := v.(lua.LString); ok {
		return string(s)
	}
	return ""
}

// getNumber returns a numeric field from a Lua table, or 0 if missing.
func getNumber(tbl *lua.LTable, key string) float64 {
	v := tbl.RawGetString(key)
	if n, ok := v.(lua.LNumber); ok {
		return float64(n)
	}
	return 0
}

// getInt returns an int field from a Lua table, or 0 if missing.
func getInt(tbl *lua.LTable, key string) int {
	return int(getNumber(tbl, key))
}

// getTable returns a table field from a Lua table, or nil if missing.
func getTable(tbl *lua.LTable, key string) *lua.LTable {
	v := tbl.RawGetString(key)
	if t, ok := v.(*lua.LTable); ok {
		return t
	}
	return nil
}

// getStringList reads an array-style table of strings, skipping other values.
func getStringList(tbl *lua.LTable, key string) []string {
	t := getTable(tbl, key)
	if t == nil {
		return nil
	}
	var out []string
	t.ForEach(func(_, v lua.LValue) {
		if s, ok := v.(lua.LString); ok {
			out = append(out, string(s))
		}
	})
	return out
}

// checkKind rejects fields of the wrong Lua type so a misspelt value does
// not silently become a zero.
func checkKind(tbl *lua.LTable, key string, want lua.LValueType) error {
	v := tbl.RawGetString(key)
	if v == lua.LNil || v.Type() == want {
		return nil
	}
	return fmt.Errorf("field %q: expected %s, got %s", key, want, v.Type())
}

// compile converts all collected Lua data into a Defs struct.
func compile(coll *collector) (*state.Defs, error) {
	defs := &state.Defs{
		NPCs: map[string]types.NPCDef{},
	}
	if coll.settings != nil {
		s, err := compileSettings(coll.settings)
		if err != nil {
			return nil, fmt.Errorf("compiling settings: %w", err)
		}
		defs.Settings = s
	}

	for _, raw := range coll.npcs {
		if _, dup := defs.NPCs[raw.id]; dup {
			return nil, fmt.Errorf("%s duplicate NPC id %q", raw.where, raw.id)
		}
		npc, err := compileNPC(raw)
		if err != nil {
			return nil, fmt.Errorf("compiling npc %s: %w", raw.id, err)
		}
		defs.NPCs[npc.ID] = npc
		defs.Order = append(defs.Order, npc.ID)
	}
	return defs, nil
}

func compileSettings(tbl *lua.LTable) (state.Settings, error) {
	for key, kind := range map[string]lua.LValueType{
		"title":       lua.LTString,
		"max_facts":   lua.LTNumber,
		"max_tags":    lua.LTNumber,
		"exploration": lua.LTNumber,
	} {
		if err := checkKind(tbl, key, kind); err != nil {
			return state.Settings{}, err
		}
	}
	return state.Settings{
		Title:       getString(tbl, "title"),
		MaxFacts:    getInt(tbl, "max_facts"),
		MaxTags:     getInt(tbl, "max_tags"),
		Exploration: getNumber(tbl, "exploration"),
	}, nil
}

func compileNPC(raw rawNPC) (types.NPCDef, error) {
	tbl := raw.table
	for key, kind := range map[string]lua.LValueType{
		"name":        lua.LTString,
		"description": lua.LTString,
		"mood":        lua.LTString,
		"affinity":    lua.LTNumber,
		"seed":        lua.LTNumber,
		"exploration": lua.LTNumber,
		"trust":       lua.LTNumber,
		"facts":       lua.LTTable,
	} {
		if err := checkKind(tbl, key, kind); err != nil {
			return types.NPCDef{}, err
		}
	}

	def := types.NPCDef{
		ID:          raw.id,
		Name:        getString(tbl, "name"),
		Description: getString(tbl, "description"),
		Affinity:    getNumber(tbl, "affinity"),
		Mood:        types.Mood(strings.ToLower(getString(tbl, "mood"))),
		Seed:        int64(getNumber(tbl, "seed")),
		Exploration: getNumber(tbl, "exploration"),
		Trust:       getNumber(tbl, "trust"),
		Facts:       getStringList(tbl, "facts"),
	}
	if def.Mood == "" {
		def.Mood = types.MoodNeutral
	}
	return def, nil
}

// sortedLuaFiles returns .lua files with settings.lua first and the rest
// sorted alphabetically.
func sortedLuaFiles(files []string) []string {
	var settingsFile string
	var others []string
	for _, f := range files {
		if f == "settings.lua" {
			settingsFile = f
		} else {
			others = append(others, f)
		}
	}
	sort.Strings(others)
	if settingsFile != "" {
		return append([]string{settingsFile}, others...)
	}
	return others
}
