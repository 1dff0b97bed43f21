package midi

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

var (
	// ErrUnknownTarget is returned by Select for an id that is not registered
	ErrUnknownTarget = errors.New("unknown target")
	// ErrNoTarget is returned by Send when nothing is selected
	ErrNoTarget = errors.New("no target selected")
)

// Scanner enumerates dynamically discovered targets.
type Scanner func() ([]Target, error)

// Info describes a registered target
type Info struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Selected bool   `json:"selected"`
}

// Registry holds the known local targets and the current selection.
// Static targets survive Refresh. Scanned targets are kept by id across
// Refresh and closed once they stop showing up.
//
// Until Select is called the preferred target wins whenever it is present.
type Registry struct {
	mu           sync.RWMutex
	static       []Target
	scanned      []Target
	scanners     []Scanner
	selected     string
	userSelected bool
	preferred    string
}

// NewRegistry creates a registry that prefers the target named preferred
// whenever it has to pick a selection on its own.
func NewRegistry(preferred string) *Registry {
	return &Registry{preferred: preferred}
}

// Add registers a static target
func (r *Registry) Add(t Target) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.static {
		if existing.ID() == t.ID() {
			r.static[i] = t
			return
		}
	}
	r.static = append(r.static, t)
	r.ensureSelectionLocked()
}

// AddScanner registers a Scanner consulted by Refresh
func (r *Registry) AddScanner(s Scanner) {
	r.mu.Lock()
	r.scanners = append(r.scanners, s)
	r.mu.Unlock()
}

// Refresh re-runs every scanner. Targets already known by id are kept so
// open device handles are reused; targets that vanished are closed. If the
// selected target disappeared the preferred (or first) target is selected
// instead.
func (r *Registry) Refresh() error {
	r.mu.RLock()
	scanners := append([]Scanner(nil), r.scanners...)
	r.mu.RUnlock()

	var found []Target
	var errs []error
	for _, scan := range scanners {
		ts, err := scan()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		found = append(found, ts...)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID() < found[j].ID() })

	r.mu.Lock()
	known := make(map[string]Target, len(r.scanned))
	for _, t := range r.scanned {
		known[t.ID()] = t
	}
	var stale []Target
	next := make([]Target, 0, len(found))
	for _, t := range found {
		if old, ok := known[t.ID()]; ok {
			delete(known, t.ID())
			if old != t {
				stale = append(stale, t)
			}
			next = append(next, old)
			continue
		}
		next = append(next, t)
	}
	for _, t := range known {
		stale = append(stale, t)
	}
	r.scanned = next
	if _, ok := r.lookupLocked(r.selected); !ok {
		r.selected = ""
		r.userSelected = false
	}
	r.ensureSelectionLocked()
	r.mu.Unlock()

	for _, t := range stale {
		if c, ok := t.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", t.ID(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Select makes id the delivery target
func (r *Registry) Select(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lookupLocked(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, id)
	}
	r.selected = id
	r.userSelected = true
	return nil
}

// Selected returns the current delivery target
func (r *Registry) Selected() (Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupLocked(r.selected)
}

// List returns every known target in registration order
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.allLocked()
	infos := make([]Info, 0, len(all))
	for _, t := range all {
		infos = append(infos, Info{ID: t.ID(), Name: t.Name(), Selected: t.ID() == r.selected})
	}
	return infos
}

// Send delivers msg to the selected target
func (r *Registry) Send(msg []byte) error {
	t, ok := r.Selected()
	if !ok {
		return ErrNoTarget
	}
	return t.Send(msg)
}

func (r *Registry) allLocked() []Target {
	all := make([]Target, 0, len(r.static)+len(r.scanned))
	all = append(all, r.static...)
	return append(all, r.scanned...)
}

func (r *Registry) lookupLocked(id string) (Target, bool) {
	if id == "" {
		return nil, false
	}
	for _, t := range r.allLocked() {
		if t.ID() == id {
			return t, true
		}
	}
	return nil, false
}

// ensureSelectionLocked switches to the preferred target when it is
// present and nothing was selected explicitly, and otherwise falls back to
// the first target when nothing is selected. Caller must hold r.mu.
func (r *Registry) ensureSelectionLocked() {
	all := r.allLocked()
	if len(all) == 0 {
		return
	}
	if !r.userSelected && r.preferred != "" {
		for _, t := range all {
			if t.Name() == r.preferred || t.ID() == r.preferred {
				r.selected = t.ID()
				return
			}
		}
	}
	if r.selected == "" {
		r.selected = all[0].ID()
	}
}
