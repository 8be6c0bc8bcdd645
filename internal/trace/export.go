package trace

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/cogloop/internal/sanitize"
)

// ExportVersion is the current export file format.
const ExportVersion = 1

// MaxExportSize bounds the decompressed payload of an export (200MB).
const MaxExportSize = 200 * 1024 * 1024

// ExportHeader is the plain-text first line of an export file. It can be
// read without decompressing the payload.
type ExportHeader struct {
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	Checksum      string    `json:"checksum"`
	RunID         string    `json:"run_id"`
	Scenario      string    `json:"scenario"`
	EventCount    int       `json:"event_count"`
	DecisionCount int       `json:"decision_count"`
}

// Export is a complete run: metadata, every event and every decision.
type Export struct {
	CreatedAt time.Time  `json:"created_at"`
	Run       Run        `json:"run"`
	Events    []EventRow `json:"events"`
	Decisions []Decision `json:"decisions"`
}

// Export collects a run for writing with WriteExport.
func (s *Store) Export(ctx context.Context, runID string) (*Export, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	events, err := s.Events(ctx, runID)
	if err != nil {
		return nil, err
	}
	decisions, err := s.Decisions(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &Export{
		CreatedAt: time.Now().UTC(),
		Run:       run,
		Events:    events,
		Decisions: decisions,
	}, nil
}

// WriteExport writes e to path as a header line followed by the
// gzip-compressed JSON payload. The header carries a SHA-256 of the
// compressed bytes.
func WriteExport(path string, e *Export) (*ExportHeader, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshaling export: %w", err)
	}
	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(payload); err != nil {
		return nil, fmt.Errorf("compressing export: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}

	header := &ExportHeader{
		Version:       ExportVersion,
		CreatedAt:     e.CreatedAt,
		Checksum:      checksum(compressed.Bytes()),
		RunID:         e.Run.ID,
		Scenario:      e.Run.Scenario,
		EventCount:    len(e.Events),
		DecisionCount: len(e.Decisions),
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshaling header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	w.Write(headerBytes)
	w.WriteByte('\n')
	w.Write(compressed.Bytes())
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("writing export: %w", err)
	}
	return header, f.Close()
}

// ReadExport reads an export file, verifies its checksum and decodes the
// payload.
func ReadExport(path string) (*Export, error) {
	_, compressed, err := readVerified(path)
	if err != nil {
		return nil, err
	}
	gzr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	data, err := io.ReadAll(io.LimitReader(gzr, MaxExportSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing export: %w", err)
	}
	if len(data) > MaxExportSize {
		return nil, fmt.Errorf("decompressed export exceeds maximum size of %d bytes", MaxExportSize)
	}
	var e Export
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("parsing export: %w", err)
	}
	return &e, nil
}

// VerifyExport checks the header and checksum of an export file without
// decompressing it, and returns the header.
func VerifyExport(path string) (*ExportHeader, error) {
	header, _, err := readVerified(path)
	return header, err
}

func readVerified(path string) (*ExportHeader, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening export: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header line: %w", err)
	}
	var header ExportHeader
	if err := json.Unmarshal(bytes.TrimSpace(line), &header); err != nil {
		return nil, nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Version != ExportVersion {
		return nil, nil, fmt.Errorf("unsupported export version %d", header.Version)
	}

	compressed, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("reading payload: %w", err)
	}
	if got := checksum(compressed); got != header.Checksum {
		return nil, nil, fmt.Errorf("checksum mismatch: expected %s, got %s", header.Checksum, got)
	}
	return &header, compressed, nil
}

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// ExportFileName returns the default file name for a run export.
func ExportFileName(run Run) string {
	id := run.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s-%s.trace.gz", sanitize.Name(run.Scenario), id)
}
