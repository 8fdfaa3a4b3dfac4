// Package cli provides the line-based console: terminal I/O, output
// formatting, and meta-command dispatch for npcmind.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nathoo/npcmind/engine"
)

// CLI handles terminal interaction with the player.
type CLI struct {
	*Session
	In        io.Reader
	Out       io.Writer
	EchoInput bool // echo each input line after the prompt (for script playback)
}

// New creates a CLI wired to the given engine.
func New(eng *engine.Engine) *CLI {
	return &CLI{
		Session: NewSession(eng),
		In:      os.Stdin,
		Out:     os.Stdout,
	}
}

// Run loops prompt, input, dispatch, output until /quit, end of input, or
// ctx is done.
func (c *CLI) Run(ctx context.Context) {
	if title := c.Engine.Defs.Settings.Title; title != "" {
		c.printLine(title)
	}
	c.printSystem(fmt.Sprintf("Talking to %s. Type /help for commands.", c.Name()))

	scanner := bufio.NewScanner(c.In)
	for ctx.Err() == nil {
		c.print(c.NPC + "> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		// Skip comment lines (for script files).
		if strings.HasPrefix(input, "#") {
			continue
		}
		if c.EchoInput {
			c.printLine(input)
		}

		out := c.Exec(ctx, input)
		c.printOutput(out)
		if out.Quit {
			return
		}
	}
}

func (c *CLI) printOutput(out Output) {
	for _, line := range out.Lines {
		switch {
		case !out.System, line == "", strings.HasPrefix(line, "[trace]"):
			c.printLine(line)
		default:
			c.printSystem(line)
		}
	}
}

func (c *CLI) printLine(text string) {
	fmt.Fprintln(c.Out, text)
}

func (c *CLI) print(text string) {
	fmt.Fprint(c.Out, text)
}

func (c *CLI) printSystem(text string) {
	fmt.Fprintf(c.Out, "[%s]\n", text)
}
