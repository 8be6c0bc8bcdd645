package numdict

import (
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"testing"
)

// treeSpace is a minimal namespace built from full paths.
type treeSpace struct {
	children map[string][]string
	nodes    map[string]bool
}

func newTreeSpace(t *testing.T, paths ...string) *treeSpace {
	t.Helper()
	s := &treeSpace{children: map[string][]string{}, nodes: map[string]bool{}}
	for _, p := range paths {
		labels := strings.Split(p, ".")
		parent := ""
		for _, l := range labels {
			cur := joinPath(parent, l)
			if !s.nodes[cur] {
				s.nodes[cur] = true
				s.children[parent] = append(s.children[parent], l)
			}
			parent = cur
		}
	}
	return s
}

func (s *treeSpace) Has(path string) bool { return path == "" || s.nodes[path] }
func (s *treeSpace) Labels(path string) []string { return s.children[path] }

func testSpace(t *testing.T) *treeSpace {
	t.Helper()
	return newTreeSpace(t,
		"chunks.a", "chunks.b",
		"data.io.input", "data.io.output",
		"data.dir.left", "data.dir.right",
		"data.color.red", "data.color.blue",
	)
}

func mustNew(t *testing.T, i Index, d map[Key]float64, c float64) NumDict {
	t.Helper()
	n, err := New(i, d, c)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return n
}

func TestKeyFactors(t *testing.T) {
	k := NewKey("chunks.a", "", "data.dir.left")
	if k != "chunks.a*data.dir.left" {
		t.Fatalf("NewKey() = %q", k)
	}
	if got := len(k.Factors()); got != 2 {
		t.Errorf("Factors() len = %d, want 2", got)
	}
	if got := Key("").Mul(k); got != k {
		t.Errorf("empty Mul = %q, want %q", got, k)
	}
}

func TestKeyFormMatches(t *testing.T) {
	tests := []struct {
		name string
		form KeyForm
		key  Key
		want bool
	}{
		{"sort member", Form("data.dir", 1), "data.dir.left", true},
		{"too deep", Form("data", 1), "data.dir.left", false},
		{"family grandchild", Form("data", 2), "data.dir.left", true},
		{"wrong prefix", Form("chunks", 1), "data.io", false},
		{"product", Form("chunks", 1).Mul(Form("data.dir", 1)), "chunks.a*data.dir.right", true},
		{"slot count", Form("chunks", 1), "chunks.a*chunks.b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.form.Matches(tt.key); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestKeyFormCoarsen(t *testing.T) {
	f := Form("data.dir", 1).Coarsen(-1)
	if !f.Equal(Form("data.dir", 0)) {
		t.Errorf("Coarsen(-1) = %s", f)
	}
	g := Form("data.dir", 0).Coarsen(-1)
	if !g.Equal(Form("data", 0)) {
		t.Errorf("Coarsen below zero = %s, want data", g)
	}
}

func TestKeyFormLessEq(t *testing.T) {
	narrow := Form("data.io.output", 0).Mul(Form("data.dir", 1))
	wide := Form("data.io", 1).Mul(Form("data", 2))
	if !narrow.LessEq(wide) {
		t.Errorf("%s should be subsumed by %s", narrow, wide)
	}
	if wide.LessEq(narrow) {
		t.Errorf("%s should not be subsumed by %s", wide, narrow)
	}
}

func TestIndexKeysFollowNamespace(t *testing.T) {
	s := testSpace(t)
	i := NewIndex(s, Form("data.dir", 1))
	if got := i.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	s.children["data.dir"] = append(s.children["data.dir"], "up")
	s.nodes["data.dir.up"] = true
	if got := i.Len(); got != 3 {
		t.Errorf("Len() after growth = %d, want 3", got)
	}
	if !i.Contains("data.dir.up") {
		t.Error("index should contain new member")
	}
	if !i.DependsOn("data.dir") || i.DependsOn("chunks") {
		t.Error("DependsOn mismatch")
	}
}

func TestNewRejectsUnknownKey(t *testing.T) {
	i := NewIndex(testSpace(t), Form("data.dir", 1))
	_, err := New(i, map[Key]float64{"data.dir.down": 1}, 0)
	if !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("New() error = %v, want ErrUnknownKey", err)
	}
}

func TestSumUnionsExplicitKeys(t *testing.T) {
	i := NewIndex(testSpace(t), Form("data.dir", 1))
	a := mustNew(t, i, map[Key]float64{"data.dir.left": 1}, 0)
	b := mustNew(t, i, map[Key]float64{"data.dir.right": 2}, 0)
	got, err := a.Sum(b)
	if err != nil {
		t.Fatal(err)
	}
	if got.Get("data.dir.left") != 1 || got.Get("data.dir.right") != 2 {
		t.Errorf("Sum() = %s", got)
	}
}

func TestNaNDefaultRestrictsIteration(t *testing.T) {
	s := testSpace(t)
	w := mustNew(t, NewIndex(s, Form("chunks", 1).Mul(Form("data.dir", 1))),
		map[Key]float64{"chunks.a*data.dir.left": 2}, math.NaN())
	in := mustNew(t, NewIndex(s, Form("data.dir", 1)), map[Key]float64{"data.dir.left": 3}, 0)

	by := Form("chunks", 1).Agg().Mul(Form("data.dir", 1))
	prod, err := w.MulBroadcast(in, by)
	if err != nil {
		t.Fatal(err)
	}
	if prod.Len() != 1 || prod.Get("chunks.a*data.dir.left") != 6 {
		t.Errorf("MulBroadcast() = %s", prod)
	}
	if !math.IsNaN(prod.Default()) {
		t.Errorf("default = %v, want NaN", prod.Default())
	}

	sum, err := prod.SumBy(Form("chunks", 1).Mul(Form("data.dir", 1).Agg()))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sum.Lookup("chunks.b"); ok {
		t.Error("unset chunk must not receive a value")
	}
	if sum.Get("chunks.a") != 6 {
		t.Errorf("SumBy() = %s", sum)
	}
}

func TestReduceFullIndex(t *testing.T) {
	i := NewIndex(testSpace(t), Form("data", 2))
	n := mustNew(t, i, map[Key]float64{"data.dir.left": -1}, 0.5)
	got, err := n.MaxBy(Form("data", 1).Mul(Form("", 0)).Coarsen(0))
	if err == nil {
		t.Fatalf("MaxBy() with mismatched slots = %s, want error", got)
	}
	if !errors.Is(err, ErrForm) {
		t.Errorf("error = %v, want ErrForm", err)
	}
	m, err := n.MaxBy(Form("data", 1))
	if err != nil {
		t.Fatal(err)
	}
	if m.Get("data.dir") != 0.5 {
		t.Errorf("max over dir = %v, want 0.5", m.Get("data.dir"))
	}
}

func TestMaxByPropagatesNaN(t *testing.T) {
	i := NewIndex(testSpace(t), Form("data.dir", 1))
	n := mustNew(t, i, map[Key]float64{"data.dir.left": math.NaN(), "data.dir.right": 1}, math.NaN())
	m, err := n.MaxBy(Form("data.dir", 1).Agg())
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(m.Get("")) {
		t.Errorf("max = %v, want NaN", m.Get(""))
	}
}

func TestArgmaxByGroups(t *testing.T) {
	s := testSpace(t)
	i := NewIndex(s, Form("data", 2))
	n := mustNew(t, i, map[Key]float64{
		"data.dir.right":  2,
		"data.color.red":  1,
		"data.color.blue": 1,
	}, 0)
	out, err := n.ArgmaxBy(Form("data", 1))
	if err != nil {
		t.Fatal(err)
	}
	if out["data.dir"] != "data.dir.right" {
		t.Errorf("dir winner = %q", out["data.dir"])
	}
	if out["data.color"] != "data.color.blue" {
		t.Errorf("tie winner = %q, want data.color.blue", out["data.color"])
	}
}

func TestNormalVariateZeroSD(t *testing.T) {
	i := NewIndex(testSpace(t), Form("data.dir", 1))
	n := mustNew(t, i, map[Key]float64{"data.dir.left": 1}, 0)
	sd := Empty(i, 0)
	got, err := n.NormalVariate(sd, rand.NewPCG(1, 2))
	if err != nil {
		t.Fatal(err)
	}
	if got.Get("data.dir.left") != 1 || got.Get("data.dir.right") != 0 {
		t.Errorf("NormalVariate(sd=0) = %s", got)
	}
}

func TestMaxValueCountsDefault(t *testing.T) {
	i := NewIndex(testSpace(t), Form("data.dir", 1))
	n := mustNew(t, i, map[Key]float64{"data.dir.left": -2}, 0)
	if got := n.MaxValue(); got != 0 {
		t.Errorf("MaxValue() = %v, want 0", got)
	}
	full := mustNew(t, i, map[Key]float64{"data.dir.left": -2, "data.dir.right": -1}, 0)
	if got := full.MaxValue(); got != -1 {
		t.Errorf("MaxValue() = %v, want -1", got)
	}
}
