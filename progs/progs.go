package progs

import (
	"sort"

	"github.com/arctir/kmux/kern"
)

// Program is one runnable demo.
type Program struct {
	Name  string
	Short string
	Body  kern.Body
}

var registry = map[string]Program{}

func register(p Program) {
	registry[p.Name] = p
}

// Lookup finds a program by name.
func Lookup(name string) (Program, bool) {
	p, ok := registry[name]
	return p, ok
}

// All returns every program, sorted by name.
func All() []Program {
	out := make([]Program, 0, len(registry))
	for _, p := range registry {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Module packages a program as the user boot module: a small image in
// user/shared plus the user heap.
func Module(body kern.Body) kern.Module {
	return kern.Module{
		Entry: body,
		Segments: []kern.Segment{
			{VAddr: kern.UserSharedBase(), MemSize: 4 * kern.PageSize, Writable: true},
		},
		HeapSize: kern.UsrHeapSize,
	}
}
