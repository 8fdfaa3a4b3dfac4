// npcmind runs the NPC decision loop against a Lua roster from a console.
// Usage: npcmind [--version] [--plain] [--script <file>] [--events <file>] [--npc <id>] [--trace] [--verify] <roster_directory>
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nathoo/npcmind/cli"
	"github.com/nathoo/npcmind/config"
	"github.com/nathoo/npcmind/engine"
	"github.com/nathoo/npcmind/loader"
	"github.com/nathoo/npcmind/tui"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = "Usage: npcmind [--version] [--plain] [--script <file>] [--events <file>] [--npc <id>] [--trace] [--verify] <roster_directory>"

type flags struct {
	plain      bool
	trace      bool
	verify     bool
	rosterDir  string
	scriptFile string
	eventsFile string
	npc        string
}

func main() {
	var f flags
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--version":
			fmt.Printf("npcmind %s (commit %s, built %s)\n", version, commit, date)
			return
		case "--plain":
			f.plain = true
		case "--trace":
			f.trace = true
		case "--verify":
			f.verify = true
		case "--script", "--events", "--npc":
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "%s requires a value\n", args[i])
				os.Exit(1)
			}
			i++
			switch args[i-1] {
			case "--script":
				f.scriptFile = args[i]
			case "--events":
				f.eventsFile = args[i]
			default:
				f.npc = args[i]
			}
		default:
			if f.rosterDir == "" {
				f.rosterDir = args[i]
			}
		}
	}

	if f.rosterDir == "" {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if f.trace {
		cfg.Trace = true
	}

	defs, err := loader.Load(f.rosterDir)
	if err != nil {
		return fmt.Errorf("loading roster: %w", err)
	}

	useTUI := f.scriptFile == "" && !f.plain && isTerminal()

	// The TUI owns the screen, so engine logs go to a file instead.
	logger := log.New(os.Stderr, "", log.LstdFlags)
	if useTUI {
		lf, err := tea.LogToFile(filepath.Join(cfg.SaveDir, "npcmind.log"), "")
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer lf.Close()
		logger = log.Default()
	} else if !cfg.Trace {
		logger = log.New(io.Discard, "", 0)
	}

	j, err := openJournal(ctx, cfg)
	if err != nil {
		return err
	}
	if j != nil {
		defer j.Close()
	}

	opts := engine.OptionsFromConfig(cfg)
	opts.Journal = j
	opts.Logger = logger
	eng := engine.New(defs, opts)
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Printf("[persist] save on exit: %v", err)
		}
	}()

	go eng.Persist(ctx, cfg.PersistInterval)

	if f.eventsFile != "" {
		n, err := feedEventsFile(ctx, eng, f.eventsFile, cfg.QueueCapacity)
		if err != nil {
			return err
		}
		logger.Printf("[queue] applied %d events from %s", n, f.eventsFile)
	}

	switch {
	case f.scriptFile != "":
		script, err := os.Open(f.scriptFile)
		if err != nil {
			return fmt.Errorf("opening script: %w", err)
		}
		defer script.Close()
		c := newCLI(eng, cfg, f.npc)
		c.In = script
		c.EchoInput = true
		c.Run(ctx)
	case !useTUI:
		newCLI(eng, cfg, f.npc).Run(ctx)
	default:
		m := tui.New(ctx, eng)
		if err := configureSession(m.Session(), cfg, f.npc); err != nil {
			return err
		}
		if err := tui.Run(ctx, m); err != nil {
			return err
		}
	}

	if f.verify {
		return verifyAll(ctx, eng, os.Stdout)
	}
	return nil
}

func newCLI(eng *engine.Engine, cfg config.Config, npc string) *cli.CLI {
	c := cli.New(eng)
	if err := configureSession(c.Session, cfg, npc); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	return c
}

func configureSession(s *cli.Session, cfg config.Config, npc string) error {
	s.SaveDir = filepath.Join(cfg.SaveDir, "saves")
	if npc == "" {
		return nil
	}
	if _, ok := s.Engine.Defs.NPCs[npc]; !ok {
		return fmt.Errorf("unknown NPC %q", npc)
	}
	s.NPC = npc
	return nil
}

// isTerminal returns true if stdout is a terminal (not piped/redirected).
func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
