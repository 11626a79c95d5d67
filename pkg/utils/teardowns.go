package utils

// Teardowns collects cleanup funcs and runs them in reverse order of
// registration, like stacked defers.
type Teardowns struct {
	funcs []func()
}

func (t *Teardowns) Add(fn func()) {
	t.funcs = append(t.funcs, fn)
}

// Teardown runs the registered funcs, last added first.
func (t *Teardowns) Teardown() {
	for i := len(t.funcs) - 1; i >= 0; i-- {
		t.funcs[i]()
	}
}
