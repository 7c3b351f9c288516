// Package changelog collects the human-readable change notes a run produces.
// The notes are the externally visible diff of a run besides the persisted
// files, written out as a single artifact for maintainer review.
package changelog

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

type Log struct {
	logger zerolog.Logger

	mu    sync.Mutex
	lines []string
}

func New(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

// Addf records a change note and echoes it to the structured log.
func (l *Log) Addf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	l.mu.Lock()
	l.lines = append(l.lines, line)
	l.mu.Unlock()
	l.logger.Info().Msg(line)
}

// Lines returns the notes recorded so far, in order.
func (l *Log) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}
