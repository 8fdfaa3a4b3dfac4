package loader

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/nathoo/npcmind/types"
)

// registerAPI registers the roster constructors and helpers as globals.
func registerAPI(L *lua.LState, coll *collector) {
	// Settings { title = "...", max_facts = 32, ... }
	L.SetGlobal("Settings", L.NewFunction(func(L *lua.LState) int {
		if coll.settings != nil {
			L.RaiseError("Settings{} defined more than once")
		}
		coll.settings = L.CheckTable(1)
		return 0
	}))

	// NPC "id" { ... } is curried: NPC("id") returns a function that takes a table.
	L.SetGlobal("NPC", L.NewFunction(func(L *lua.LState) int {
		id := L.CheckString(1)
		line := L.Where(1)
		L.Push(L.NewFunction(func(L *lua.LState) int {
			tbl := L.CheckTable(1)
			coll.npcs = append(coll.npcs, rawNPC{id: id, where: line, table: tbl})
			return 0
		}))
		return 1
	}))

	// Mood.pleased == "pleased"; typos read as nil and fail validation.
	moods := L.NewTable()
	for _, m := range types.Moods {
		moods.RawSetString(string(m), lua.LString(m))
	}
	L.SetGlobal("Mood", moods)
}
