package process

import (
	"context"
	"testing"

	"github.com/nvandessel/cogloop/internal/knowledge"
	"github.com/nvandessel/cogloop/internal/numdict"
	"github.com/nvandessel/cogloop/internal/system"
)

// world is a small namespace shared by the process tests:
//
//	data.io      {input, output}
//	feat.color   {red, blue}
//	feat.shape   {square, circle}
//	feat.direction {left, right}
//	chunks.c     {a, b, c}
//	params
type world struct {
	sys    *system.System
	root   *knowledge.Node
	io     *knowledge.Node
	feat   *knowledge.Node
	dir    *knowledge.Node
	chunks *knowledge.Node
	family *knowledge.Node
	params *knowledge.Node
}

func newWorld(t *testing.T, opts system.Options) *world {
	t.Helper()
	root := knowledge.NewRoot()
	must := func(n *knowledge.Node, err error) *knowledge.Node {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return n
	}
	data := must(root.Family("data"))
	feat := must(root.Family("feat"))
	chunkFam := must(root.Family("chunks"))
	w := &world{
		root:   root,
		io:     must(data.Sort("io", "input", "output")),
		feat:   feat,
		chunks: must(chunkFam.Sort("c", "a", "b", "c")),
		family: chunkFam,
		params: must(root.Family("params")),
	}
	must(feat.Sort("color", "red", "blue"))
	must(feat.Sort("shape", "square", "circle"))
	w.dir = must(feat.Sort("direction", "left", "right"))
	w.sys = system.New(root, opts, nil)
	return w
}

func (w *world) node(t *testing.T, path string) *knowledge.Node {
	t.Helper()
	n, ok := w.root.Resolve(path)
	if !ok {
		t.Fatalf("no node at %q", path)
	}
	return n
}

func key(paths ...string) numdict.Key { return numdict.NewKey(paths...) }

// write schedules a user write of data into site and runs the system.
func (w *world) write(t *testing.T, site *system.Site, data map[numdict.Key]float64) {
	t.Helper()
	u, err := site.UpdateData(data, system.MethodWrite)
	if err != nil {
		t.Fatalf("UpdateData() error = %v", err)
	}
	if err := w.sys.ScheduleUser(0, u); err != nil {
		t.Fatal(err)
	}
	w.run(t)
}

// push schedules a user push of data into site and runs the system.
func (w *world) push(t *testing.T, site *system.Site, data map[numdict.Key]float64) {
	t.Helper()
	u, err := site.UpdateData(data, system.MethodPush)
	if err != nil {
		t.Fatalf("UpdateData() error = %v", err)
	}
	if err := w.sys.ScheduleUser(0, u); err != nil {
		t.Fatal(err)
	}
	w.run(t)
}

func (w *world) run(t *testing.T) {
	t.Helper()
	if err := w.sys.RunAll(context.Background()); err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
}

func near(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
