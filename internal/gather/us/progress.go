package us

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// progressTracker records which symbols a gatherer has finished for the
// current end date and which end date was last completed in full. A crashed
// run resumes with the symbols it has not done yet; a finished run is a
// no-op until the end date moves.
//
// Files live in dir as .<name>-done (one symbol per line) and
// .<name>-completed (a YYYY-MM-DD date).
type progressTracker struct {
	mu     sync.Mutex
	done   map[string]struct{}
	writer *bufio.Writer
	file   *os.File
	dir    string
	name   string
}

func newProgressTracker(dir, name string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}

	pt := &progressTracker{
		done: make(map[string]struct{}),
		dir:  dir,
		name: name,
	}

	data, err := os.ReadFile(pt.donePath())
	if err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if sym := strings.TrimSpace(line); sym != "" {
				pt.done[sym] = struct{}{}
			}
		}
	}

	if err := pt.open(); err != nil {
		return nil, err
	}
	return pt, nil
}

func (p *progressTracker) donePath() string {
	return filepath.Join(p.dir, "."+p.name+"-done")
}

func (p *progressTracker) completedPath() string {
	return filepath.Join(p.dir, "."+p.name+"-completed")
}

func (p *progressTracker) open() error {
	f, err := os.OpenFile(p.donePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", p.donePath(), err)
	}
	p.file = f
	p.writer = bufio.NewWriter(f)
	return nil
}

// IsDone reports whether the symbol was already ingested for this end date.
func (p *progressTracker) IsDone(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.done[symbol]
	return ok
}

// MarkDone records a batch of symbols as ingested.
func (p *progressTracker) MarkDone(symbols []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sym := range symbols {
		if _, ok := p.done[sym]; ok {
			continue
		}
		p.done[sym] = struct{}{}
		if _, err := p.writer.WriteString(sym + "\n"); err != nil {
			return fmt.Errorf("writing %s: %w", p.donePath(), err)
		}
	}
	return p.writer.Flush()
}

// MarkCompleted records date as fully ingested.
func (p *progressTracker) MarkCompleted(date string) error {
	return os.WriteFile(p.completedPath(), []byte(date), 0o644)
}

// IsCompleted reports whether date was the last fully ingested end date.
func (p *progressTracker) IsCompleted(date string) bool {
	return p.LastCompleted() == date
}

// LastCompleted returns the last fully ingested end date, or "".
func (p *progressTracker) LastCompleted() string {
	data, err := os.ReadFile(p.completedPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Reset forgets the done set, for a new end date.
func (p *progressTracker) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file != nil {
		p.file.Close()
	}
	p.done = make(map[string]struct{})
	os.Remove(p.donePath())
	return p.open()
}

// Close flushes and closes the done file.
func (p *progressTracker) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		p.writer.Flush()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}
