package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/cogloop/internal/sanitize"
)

// AuditEntry records a single MCP tool invocation.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
	SimTime    string            `json:"sim_time,omitempty"`
}

// AuditLogger appends audit entries to .cogloop/audit.jsonl under the
// project root. It is safe for concurrent use, and a nil AuditLogger
// ignores every call.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditLogger opens root/.cogloop/audit.jsonl for append. If the file
// cannot be opened a warning is printed to stderr and nil is returned.
func NewAuditLogger(root string) *AuditLogger {
	dir := filepath.Join(root, ".cogloop")
	if err := os.MkdirAll(dir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot create audit log directory %s: %v\n", dir, err)
		return nil
	}
	path := filepath.Join(dir, "audit.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open audit log %s: %v\n", path, err)
		return nil
	}
	return &AuditLogger{file: f}
}

// Log writes entry as one JSON line.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return
	}
	_, _ = a.file.Write(append(data, '\n'))
}

// Close closes the log file. It is safe to call more than once.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// auditTool logs a completed tool call.
func (s *Server) auditTool(tool string, start time.Time, err error, params map[string]string) {
	entry := AuditEntry{
		Timestamp:  start.UTC(),
		Tool:       tool,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     "success",
		Params:     params,
		SimTime:    s.model.System().Now().String(),
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = sanitize.Text(err.Error())
	}
	s.audit.Log(entry)
}

// evidenceParams summarises evidence for the audit log: the feature names
// and how many there are, not the weights.
func evidenceParams(evidence map[string]float64) map[string]string {
	names := make([]string, 0, len(evidence))
	for k := range evidence {
		names = append(names, sanitize.Name(k))
	}
	sort.Strings(names)
	return map[string]string{
		"features":     strings.Join(names, ","),
		"_param_count": fmt.Sprintf("%d", len(evidence)),
	}
}
