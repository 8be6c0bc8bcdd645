// Package logging provides leveled logging and decision traces for cogloop.
// There are two outputs:
//   - a leveled slog.Logger on stderr for scheduler and CLI output
//   - a DecisionLogger appending one JSON line per choice, and per trial left
//     undecided, to .cogloop/decisions.jsonl
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace sits below Debug. At this level every applied site update
// is logged with its data.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a level name to a slog.Level. Accepted names are
// "warn", "info", "debug" and "trace", case-insensitive. Anything else
// is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "warn":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled text logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

// Decision is one resolved choice.
type Decision struct {
	RunID    string  `json:"run_id,omitempty"`
	Trial    int     `json:"trial"`
	SimTime  string  `json:"sim_time"`
	Group    string  `json:"group"`
	Choice   string  `json:"choice"`
	Evidence float64 `json:"evidence"`
}

// DecisionLogger appends decision records to a JSONL file. It is safe for
// concurrent use, and a nil DecisionLogger ignores every call.
type DecisionLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewDecisionLogger opens dir/decisions.jsonl for append when level is
// debug or trace. At any other level, or when the file cannot be opened,
// it returns nil.
func NewDecisionLogger(dir string, level string) *DecisionLogger {
	if ParseLevel(level) > slog.LevelDebug {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, "decisions.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &DecisionLogger{file: f}
}

// LogDecision writes d as one line, stamped with the wall-clock time.
func (dl *DecisionLogger) LogDecision(d Decision) {
	if dl == nil {
		return
	}
	dl.write(struct {
		Decision
		Time string `json:"time"`
	}{d, time.Now().UTC().Format(time.RFC3339Nano)})
}

// Log writes a free-form event as one line. A "time" field is added; the
// caller's map is not mutated.
func (dl *DecisionLogger) Log(event map[string]any) {
	if dl == nil {
		return
	}
	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	dl.write(entry)
}

func (dl *DecisionLogger) write(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.file == nil {
		return
	}
	_, _ = dl.file.Write(append(data, '\n'))
}

// Close closes the underlying file. Safe on a nil receiver.
func (dl *DecisionLogger) Close() {
	if dl == nil {
		return
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.file != nil {
		dl.file.Close()
		dl.file = nil
	}
}
