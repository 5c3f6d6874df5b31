package gesture

import (
	"fmt"
	"sync"
)

// Entry is a named reference sequence stored in a Library.
type Entry struct {
	Name     string
	Sequence Sequence
}

// Library is an ordered collection of named reference sequences.
// Names are unique; adding under an existing name replaces its sequence
// in place. It is safe for concurrent use.
type Library struct {
	dimension int

	mu      sync.RWMutex
	entries []Entry
	index   map[string]int
}

// NewLibrary creates an empty Library holding frames of the given dimension.
func NewLibrary(dimension int) (*Library, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, dimension)
	}
	return &Library{
		dimension: dimension,
		index:     make(map[string]int),
	}, nil
}

// Dimension returns the frame dimension of the library.
func (l *Library) Dimension() int {
	return l.dimension
}

// AddOrUpdate stores a copy of seq under name. An existing entry keeps its
// position; a new entry is appended.
func (l *Library) AddOrUpdate(seq Sequence, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := seq.Validate(l.dimension); err != nil {
		return fmt.Errorf("gesture %q: %w", name, err)
	}

	stored := seq.Clone()

	l.mu.Lock()
	defer l.mu.Unlock()

	if i, ok := l.index[name]; ok {
		l.entries[i].Sequence = stored
		return nil
	}

	l.index[name] = len(l.entries)
	l.entries = append(l.entries, Entry{Name: name, Sequence: stored})
	return nil
}

// Lookup returns a copy of the reference sequence stored under name.
func (l *Library) Lookup(name string) (Sequence, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, ok := l.index[name]
	if !ok {
		return nil, false
	}
	return l.entries[i].Sequence.Clone(), true
}

// Entries returns the entries in insertion order. The sequences are shared
// with the library and must be treated as read-only; Clone before modifying.
func (l *Library) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Names returns the gesture names in insertion order.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, len(l.entries))
	for i, e := range l.entries {
		names[i] = e.Name
	}
	return names
}

// Len returns the number of entries.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Replace swaps the whole content of the library for entries.
// Entries are validated first; on error the library is left unchanged.
func (l *Library) Replace(entries []Entry) error {
	scratch, err := NewLibrary(l.dimension)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := scratch.AddOrUpdate(e.Sequence, e.Name); err != nil {
			return err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = scratch.entries
	l.index = scratch.index
	return nil
}
