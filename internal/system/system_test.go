package system

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/nvandessel/cogloop/internal/knowledge"
	"github.com/nvandessel/cogloop/internal/numdict"
)

// recorder remembers the sources of the events it resolves.
type recorder struct {
	Base
	seen []Source
}

func (r *recorder) Resolve(ev Event) error {
	r.seen = append(r.seen, ev.Source)
	return nil
}

// echo reschedules itself on every event it sent.
type echo struct {
	Base
}

func (e *echo) Resolve(ev Event) error {
	if ev.From(e.Source("ping")) {
		return e.Schedule("ping", PriorityPropagation, nil)
	}
	return nil
}

func newTestSystem(t *testing.T, opts Options) (*System, *knowledge.Node) {
	t.Helper()
	root := knowledge.NewRoot()
	data, err := root.Family("data")
	if err != nil {
		t.Fatal(err)
	}
	dir, err := data.Sort("direction", "left", "right")
	if err != nil {
		t.Fatal(err)
	}
	return New(root, opts, nil), dir
}

func newTestSite(t *testing.T, sys *System, sort *knowledge.Node, lags int) *Site {
	t.Helper()
	site, err := NewSite(sys.Index(knowledge.FormOf(sort)), nil, 0, lags)
	if err != nil {
		t.Fatal(err)
	}
	return site
}

func TestEventOrdering(t *testing.T) {
	sys, _ := newTestSystem(t, Options{})
	rec := &recorder{Base: NewBase(sys, "rec")}
	if err := sys.Register(rec); err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		op string
		dt time.Duration
		p  Priority
	}{
		{"late", 10 * time.Millisecond, PriorityMax},
		{"low", 0, PriorityDeferred},
		{"high", 0, PriorityChoice},
		{"high2", 0, PriorityChoice},
	}
	for _, s := range steps {
		if err := sys.Schedule(Source{Op: s.op}, s.dt, s.p); err != nil {
			t.Fatal(err)
		}
	}
	if err := sys.RunAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []string{"high", "high2", "low", "late"}
	if len(rec.seen) != len(want) {
		t.Fatalf("seen %d events, want %d", len(rec.seen), len(want))
	}
	for i, w := range want {
		if rec.seen[i].Op != w {
			t.Errorf("event %d = %s, want %s", i, rec.seen[i].Op, w)
		}
	}
	if sys.Now() != 10*time.Millisecond {
		t.Errorf("Now() = %v, want 10ms", sys.Now())
	}
}

func TestPushHistoryRoundTrip(t *testing.T) {
	sys, dir := newTestSystem(t, Options{})
	site := newTestSite(t, sys, dir, 1)
	left := dir.Member("left").Key()

	first, err := site.UpdateData(map[numdict.Key]float64{left: 1}, MethodPush)
	if err != nil {
		t.Fatal(err)
	}
	second, err := site.UpdateData(map[numdict.Key]float64{left: 2}, MethodPush)
	if err != nil {
		t.Fatal(err)
	}
	if err := sys.ScheduleUser(0, first); err != nil {
		t.Fatal(err)
	}
	if err := sys.ScheduleUser(time.Millisecond, second); err != nil {
		t.Fatal(err)
	}
	if err := sys.RunAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := site.Current().Get(left); got != 2 {
		t.Errorf("lag 0 = %v, want 2", got)
	}
	prev, ok := site.At(1)
	if !ok || prev.Get(left) != 1 {
		t.Errorf("lag 1 = %v, want 1", prev.Get(left))
	}
	if _, ok := site.At(2); ok {
		t.Error("At(2) should be out of range with one lag")
	}
}

func TestWriteAndAddMethods(t *testing.T) {
	sys, dir := newTestSystem(t, Options{})
	site := newTestSite(t, sys, dir, 0)
	left, right := dir.Member("left").Key(), dir.Member("right").Key()

	apply := func(data map[numdict.Key]float64, m Method) {
		t.Helper()
		u, err := site.UpdateData(data, m)
		if err != nil {
			t.Fatal(err)
		}
		if err := u.Apply(); err != nil {
			t.Fatal(err)
		}
	}
	apply(map[numdict.Key]float64{left: 1}, MethodPush)
	apply(map[numdict.Key]float64{right: 3}, MethodWrite)
	apply(map[numdict.Key]float64{left: 0.5}, MethodAdd)

	if got := site.Current().Get(left); got != 1.5 {
		t.Errorf("left = %v, want 1.5", got)
	}
	if got := site.Current().Get(right); got != 3 {
		t.Errorf("right = %v, want 3", got)
	}
}

func TestUpdateRejectsForeignIndex(t *testing.T) {
	sys, dir := newTestSystem(t, Options{})
	site := newTestSite(t, sys, dir, 0)
	other := numdict.Empty(sys.Index(knowledge.FormOf(dir.Parent())), 0)
	if _, err := site.Update(other, MethodPush); !errors.Is(err, ErrWiring) {
		t.Errorf("Update() error = %v, want ErrWiring", err)
	}
	nan := numdict.Empty(site.Index(), math.NaN())
	if _, err := site.Update(nan, MethodPush); !errors.Is(err, ErrWiring) {
		t.Errorf("Update() with NaN default error = %v, want ErrWiring", err)
	}
}

func TestAffectedBy(t *testing.T) {
	sys, dir := newTestSystem(t, Options{})
	a := newTestSite(t, sys, dir, 0)
	b := newTestSite(t, sys, dir, 0)
	u, err := a.UpdateData(nil, MethodPush)
	if err != nil {
		t.Fatal(err)
	}
	if !a.AffectedBy(u) || b.AffectedBy(u) {
		t.Error("site update should affect only its own site")
	}
	grow := &SortUpdate{Sort: dir, Terms: []*knowledge.Node{knowledge.NewAtom("up")}}
	if !a.AffectedBy(grow) {
		t.Error("sort update should affect sites enumerating the sort")
	}
	if err := grow.Apply(); err != nil {
		t.Fatal(err)
	}
	if a.Index().Len() != 3 {
		t.Errorf("index len = %d, want 3", a.Index().Len())
	}
}

func TestTouchesIgnoresSortGrowth(t *testing.T) {
	sys, dir := newTestSystem(t, Options{})
	a := newTestSite(t, sys, dir, 0)
	write, err := a.UpdateData(nil, MethodWrite)
	if err != nil {
		t.Fatal(err)
	}
	grow := &SortUpdate{Sort: dir, Terms: []*knowledge.Node{knowledge.NewAtom("down")}}

	tests := []struct {
		name    string
		updates []Update
		want    bool
	}{
		{"site write", []Update{write}, true},
		{"sort growth only", []Update{grow}, false},
		{"both", []Update{grow, write}, true},
		{"none", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Event{Updates: tt.updates}
			if got := ev.Touches(a); got != tt.want {
				t.Errorf("Touches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCascadeLimit(t *testing.T) {
	sys, _ := newTestSystem(t, Options{CascadeLimit: 50})
	e := &echo{Base: NewBase(sys, "echo")}
	if err := sys.Register(e); err != nil {
		t.Fatal(err)
	}
	if err := e.Schedule("ping", PriorityPropagation, nil); err != nil {
		t.Fatal(err)
	}
	err := sys.RunAll(context.Background())
	if !errors.Is(err, ErrCascade) {
		t.Fatalf("RunAll() error = %v, want ErrCascade", err)
	}
}

func TestTimeLimitStopsRun(t *testing.T) {
	sys, _ := newTestSystem(t, Options{TimeLimit: 5 * time.Millisecond})
	if err := sys.ScheduleUser(10 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if _, err := sys.Advance(); !errors.Is(err, ErrTimeLimit) {
		t.Errorf("Advance() error = %v, want ErrTimeLimit", err)
	}
	if err := sys.RunAll(context.Background()); err != nil {
		t.Errorf("RunAll() error = %v, want nil at time limit", err)
	}
	if sys.Pending() != 1 {
		t.Errorf("Pending() = %d, want the late event kept", sys.Pending())
	}
}

func TestScheduleRejectsNegativeDelay(t *testing.T) {
	sys, _ := newTestSystem(t, Options{})
	if err := sys.Schedule(UserSource, -time.Second, PriorityMax); !errors.Is(err, ErrPastEvent) {
		t.Errorf("Schedule() error = %v, want ErrPastEvent", err)
	}
}

func TestRegisterAndRoot(t *testing.T) {
	sys, dir := newTestSystem(t, Options{})
	if err := sys.Register(&recorder{Base: NewBase(sys, "p")}); err != nil {
		t.Fatal(err)
	}
	if err := sys.Register(&recorder{Base: NewBase(sys, "p")}); !errors.Is(err, ErrDuplicateProcess) {
		t.Errorf("Register() error = %v, want ErrDuplicateProcess", err)
	}
	if err := sys.CheckRoot(dir); err != nil {
		t.Errorf("CheckRoot() = %v", err)
	}
	stranger := knowledge.NewRoot()
	fam, _ := stranger.Family("x")
	if err := sys.CheckRoot(fam); !errors.Is(err, ErrRootMismatch) {
		t.Errorf("CheckRoot() error = %v, want ErrRootMismatch", err)
	}
}

func TestWire(t *testing.T) {
	sys, dir := newTestSystem(t, Options{})
	fam := dir.Parent()
	wide, err := NewSite(sys.Index(knowledge.FormOf(fam)), nil, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	narrow := newTestSite(t, sys, dir, 0)

	dst := wide
	if err := Wire(&dst, narrow, true); err != nil {
		t.Errorf("lax Wire() = %v", err)
	}
	if dst != narrow {
		t.Error("Wire() did not replace the site")
	}

	dst = narrow
	if err := Wire(&dst, wide, true); !errors.Is(err, ErrWiring) {
		t.Errorf("Wire() to wider form error = %v, want ErrWiring", err)
	}

	nan, err := NewSite(sys.Index(knowledge.FormOf(dir)), nil, math.NaN(), 0)
	if err != nil {
		t.Fatal(err)
	}
	dst = narrow
	if err := Wire(&dst, nan, false); !errors.Is(err, ErrWiring) {
		t.Errorf("Wire() with default mismatch error = %v, want ErrWiring", err)
	}
}

func TestClearDiscardsPending(t *testing.T) {
	sys, _ := newTestSystem(t, Options{})
	for range 3 {
		if err := sys.ScheduleUser(0); err != nil {
			t.Fatal(err)
		}
	}
	sys.Clear()
	if sys.Pending() != 0 {
		t.Errorf("Pending() = %d after Clear", sys.Pending())
	}
	if _, err := sys.Advance(); !errors.Is(err, ErrEmptyQueue) {
		t.Errorf("Advance() error = %v, want ErrEmptyQueue", err)
	}
}

func TestObserverSeesEvents(t *testing.T) {
	sys, _ := newTestSystem(t, Options{})
	count := 0
	sys.Observe(observerFunc(func(ev Event) error { count++; return nil }))
	_ = sys.ScheduleUser(0)
	_ = sys.ScheduleUser(time.Millisecond)
	if err := sys.RunAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("observer saw %d events, want 2", count)
	}
}

type observerFunc func(Event) error

func (f observerFunc) OnEvent(_ context.Context, ev Event) error { return f(ev) }
