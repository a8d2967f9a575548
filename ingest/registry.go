package ingest

import (
	"fmt"
	"sort"
	"sync"
)

var ErrUnsupportedSource = fmt.Errorf("unsupported source")

var registry = struct {
	sync.RWMutex
	adapters map[Source]Adapter
}{adapters: map[Source]Adapter{}}

// Register makes an adapter available to the pipeline. Registering the same
// source twice panics, that is always a wiring mistake.
func Register(a Adapter) {
	registry.Lock()
	defer registry.Unlock()

	if _, ok := registry.adapters[a.Source()]; ok {
		panic(fmt.Sprintf("adapter already registered for source %q", a.Source()))
	}
	registry.adapters[a.Source()] = a
}

func Lookup(s Source) (Adapter, error) {
	registry.RLock()
	defer registry.RUnlock()

	a, ok := registry.adapters[s]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, s)
	}
	return a, nil
}

func Sources() []Source {
	registry.RLock()
	defer registry.RUnlock()

	out := make([]Source, 0, len(registry.adapters))
	for s := range registry.adapters {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
