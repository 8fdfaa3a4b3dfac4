package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nathoo/npcmind/config"
	"github.com/nathoo/npcmind/engine"
	"github.com/nathoo/npcmind/engine/queue"
	"github.com/nathoo/npcmind/engine/signal"
	"github.com/nathoo/npcmind/journal"
	"github.com/nathoo/npcmind/journal/pgjournal"
	"github.com/nathoo/npcmind/journal/sqlitejournal"
)

// openJournal opens the configured journal backend. It returns nil when
// journaling is off.
func openJournal(ctx context.Context, cfg config.Config) (journal.Journal, error) {
	switch cfg.JournalDriver {
	case config.JournalNone, "":
		return nil, nil
	case config.JournalMemory:
		return journal.NewMemory(), nil
	case config.JournalSQLite:
		s, err := sqlitejournal.Open(cfg.JournalDSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite journal: %w", err)
		}
		return s, nil
	case config.JournalPostgres:
		s, err := pgjournal.Open(ctx, cfg.JournalDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres journal: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown journal driver %q", cfg.JournalDriver)
	}
}

func feedEventsFile(ctx context.Context, eng *engine.Engine, path string, batch int) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening events: %w", err)
	}
	defer f.Close()
	return feedEvents(ctx, eng, f, batch)
}

// feedEvents reads one boundary event per line, queues them and drains the
// queue every batch events so nothing is evicted. Blank lines and lines
// starting with '#' are skipped.
func feedEvents(ctx context.Context, eng *engine.Engine, r io.Reader, batch int) (int, error) {
	if batch <= 0 {
		batch = 1
	}
	var errs []error
	applied, pending, lineNo := 0, 0, 0

	drain := func() {
		n, err := eng.Drain(ctx)
		applied += n
		if err != nil {
			errs = append(errs, err)
		}
		pending = 0
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var raw signal.RawEvent
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", lineNo, err))
			continue
		}
		if err := eng.Enqueue(raw, queue.Low); err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", lineNo, err))
			continue
		}
		if pending++; pending >= batch {
			drain()
		}
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, err)
	}
	drain()
	return applied, errors.Join(errs...)
}

// verifyAll replays every active NPC and reports divergence.
func verifyAll(ctx context.Context, eng *engine.Engine, w io.Writer) error {
	var errs []error
	for _, id := range eng.Active() {
		if err := eng.VerifyReplay(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(w, "replay ok: %s\n", id)
	}
	return errors.Join(errs...)
}
