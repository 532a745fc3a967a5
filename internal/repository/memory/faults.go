// Package memory provides in-process repository adapters for local runs and
// tests. Each store can be told to fail a method with SetError.
package memory

import "sync"

// faults holds injected errors keyed by method name.
type faults struct {
	mu           sync.RWMutex
	shouldFailOn map[string]error
}

// SetError configures the store to return err from method.
func (f *faults) SetError(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shouldFailOn == nil {
		f.shouldFailOn = make(map[string]error)
	}
	f.shouldFailOn[method] = err
}

// ClearErrors removes all configured errors.
func (f *faults) ClearErrors() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shouldFailOn = make(map[string]error)
}

func (f *faults) checkError(method string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.shouldFailOn[method]
}
