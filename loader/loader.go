package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/nathoo/npcmind/engine/state"
)

// collector accumulates Lua definitions during file execution.
type collector struct {
	settings *lua.LTable
	npcs     []rawNPC
}

// Load reads all .lua files from dir, compiles them into an NPC roster,
// validates it, and returns the immutable Defs. The Lua VM is discarded
// after loading.
func Load(dir string) (*state.Defs, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading roster directory %s: %w", dir, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".lua") {
			luaFiles = append(luaFiles, e.Name())
		}
	}
	if len(luaFiles) == 0 {
		return nil, fmt.Errorf("no .lua files found in %s", dir)
	}

	// settings.lua first, rest alphabetical.
	luaFiles = sortedLuaFiles(luaFiles)

	return run(func(L *lua.LState) error {
		for _, f := range luaFiles {
			if err := L.DoFile(filepath.Join(dir, f)); err != nil {
				return fmt.Errorf("executing %s: %w", f, err)
			}
		}
		return nil
	})
}

// LoadString compiles a single roster chunk. name is used in error messages.
func LoadString(name, src string) (*state.Defs, error) {
	return run(func(L *lua.LState) error {
		fn, err := L.Load(strings.NewReader(src), name)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", name, err)
		}
		L.Push(fn)
		if err := L.PCall(0, lua.MultRet, nil); err != nil {
			return fmt.Errorf("executing %s: %w", name, err)
		}
		return nil
	})
}

func run(exec func(L *lua.LState) error) (*state.Defs, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	openSafeLibs(L)
	sandbox(L)

	coll := &collector{}
	registerAPI(L, coll)

	if err := exec(L); err != nil {
		return nil, err
	}

	defs, err := compile(coll)
	if err != nil {
		return nil, fmt.Errorf("compiling roster: %w", err)
	}
	if err := validate(defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// openSafeLibs opens only the safe subset of Lua standard libraries.
func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// sandbox removes globals that reach the filesystem or bypass metatables.
func sandbox(L *lua.LState) {
	dangerous := []string{
		"dofile", "loadfile", "load", "loadstring",
		"rawset", "rawget", "rawequal",
		"collectgarbage", "require", "module",
	}
	for _, name := range dangerous {
		L.SetGlobal(name, lua.LNil)
	}

	// NPC seeds come from the roster, not from Lua.
	if tbl, ok := L.GetGlobal("math").(*lua.LTable); ok {
		tbl.RawSetString("randomseed", lua.LNil)
		tbl.RawSetString("random", lua.LNil)
	}
}
