package trace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/cogloop/internal/system"
)

func recordSampleRun(t *testing.T, s *Store) string {
	t.Helper()
	ctx := context.Background()
	rec, err := s.BeginRun(ctx, "two-choice", 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := range 3 {
		ev := system.Event{
			Time:   time.Duration(i) * time.Millisecond,
			Source: system.Source{Proc: "evidence", Op: "send"},
			Seq:    uint64(i),
		}
		if err := rec.OnEvent(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}
	if err := rec.RecordDecision(ctx, Decision{
		Trial:    0,
		SimTime:  2 * time.Millisecond,
		Group:    "data.io.output*feat.direction",
		Choice:   "data.io.output*feat.direction.left",
		Evidence: 2,
	}); err != nil {
		t.Fatal(err)
	}
	if err := rec.Finish(ctx, nil); err != nil {
		t.Fatal(err)
	}
	return rec.RunID()
}

func TestExportRoundTrip(t *testing.T) {
	s := openTestStore(t)
	runID := recordSampleRun(t, s)

	e, err := s.Export(context.Background(), runID)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "exports", ExportFileName(e.Run))
	header, err := WriteExport(path, e)
	if err != nil {
		t.Fatalf("WriteExport() error = %v", err)
	}
	if header.RunID != runID || header.EventCount != 3 || header.DecisionCount != 1 {
		t.Errorf("header = %+v", header)
	}
	if !strings.HasPrefix(header.Checksum, "sha256:") {
		t.Errorf("checksum = %q", header.Checksum)
	}

	verified, err := VerifyExport(path)
	if err != nil {
		t.Fatalf("VerifyExport() error = %v", err)
	}
	if verified.Checksum != header.Checksum {
		t.Errorf("verified checksum %q, want %q", verified.Checksum, header.Checksum)
	}

	got, err := ReadExport(path)
	if err != nil {
		t.Fatalf("ReadExport() error = %v", err)
	}
	if got.Run.ID != runID || got.Run.Status != StatusComplete || got.Run.Seed != 3 {
		t.Errorf("run = %+v", got.Run)
	}
	if len(got.Events) != 3 || got.Events[2].SimTime != 2*time.Millisecond {
		t.Errorf("events = %+v", got.Events)
	}
	if len(got.Decisions) != 1 || got.Decisions[0].Choice != "data.io.output*feat.direction.left" {
		t.Errorf("decisions = %+v", got.Decisions)
	}
}

func TestExportDetectsTampering(t *testing.T) {
	s := openTestStore(t)
	e, err := s.Export(context.Background(), recordSampleRun(t, s))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "run.trace.gz")
	if _, err := WriteExport(path, e); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := VerifyExport(path); err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("VerifyExport() error = %v, want checksum mismatch", err)
	}
	if _, err := ReadExport(path); err == nil {
		t.Error("ReadExport() accepted a tampered file")
	}
}

func TestReadExportRejectsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"empty":          "",
		"not json":       "hello\nworld",
		"future version": `{"version":99,"checksum":"sha256:00"}` + "\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_"))
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := ReadExport(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestExportUnknownRun(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Export(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Export() error = %v, want ErrNotFound", err)
	}
}

func TestExportFileName(t *testing.T) {
	got := ExportFileName(Run{ID: "0123456789abcdef", Scenario: "two choice/../x"})
	if got != "twochoice.x-01234567.trace.gz" {
		t.Errorf("ExportFileName() = %q", got)
	}
}
