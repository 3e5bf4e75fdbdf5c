package permission

import (
	"errors"
	"fmt"
	"sync"
)

// MaxBits is the width of a [Mask64].
const MaxBits = 64

var (
	// ErrRegistryFrozen is returned by Register after Freeze.
	ErrRegistryFrozen = errors.New("registry frozen")
	// ErrEmptyName is returned for empty permission or role names.
	ErrEmptyName = errors.New("name cannot be empty")
	// ErrDuplicate is returned when a permission or role is registered twice.
	ErrDuplicate = errors.New("already registered")
	// ErrLimitExceeded is returned when no free bit remains.
	ErrLimitExceeded = errors.New("permission limit exceeded")
	// ErrUnknownPermission is returned when a role references an unregistered permission.
	ErrUnknownPermission = errors.New("permission not registered")
)

// Registry maps permission names to bit positions within a [Mask64].
type Registry struct {
	rootReserved bool
	rootBit      int

	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	order     []string
	frozen    bool
}

// NewRegistry creates a permission [Registry]. rootReserved reserves the
// highest bit for a super-user permission, leaving 63 assignable bits.
func NewRegistry(rootReserved bool) *Registry {
	r := &Registry{
		rootReserved: rootReserved,
		rootBit:      -1,
		nameToBit:    make(map[string]int),
		bitToName:    make(map[int]string),
	}

	if rootReserved {
		r.rootBit = MaxBits - 1
	}

	return r
}

// Register assigns the next available bit to the named permission.
// Returns the assigned bit index. Must be called before [Registry.Freeze].
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, ErrRegistryFrozen
	}

	if name == "" {
		return -1, ErrEmptyName
	}

	if _, exists := r.nameToBit[name]; exists {
		return -1, fmt.Errorf("%w: permission %q", ErrDuplicate, name)
	}

	nextBit := len(r.nameToBit)

	if r.rootReserved && nextBit >= r.rootBit {
		return -1, ErrLimitExceeded
	}

	if nextBit >= MaxBits {
		return -1, ErrLimitExceeded
	}

	r.nameToBit[name] = nextBit
	r.bitToName[nextBit] = name
	r.order = append(r.order, name)

	return nextBit, nil
}

// Bit returns the bit index for the named permission, or false if not registered.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

// Name returns the permission name for the given bit index, or false if unassigned.
func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// Names returns the registered permissions in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Expand lists the permission names granted by m, in registration order.
// A mask holding the reserved root bit expands to every permission.
func (r *Registry) Expand(m *Mask64) []string {
	if m == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if m.Has(r.nameToBit[name], r.rootReserved) {
			out = append(out, name)
		}
	}
	return out
}

// Freeze prevents further registrations. Must be called before the
// registry is used for validation.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered permissions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}

// RootReserved reports whether the highest bit is reserved for root.
func (r *Registry) RootReserved() bool {
	return r.rootReserved
}

// RootBit returns the reserved root permission bit, or false if root-bit
// reservation is disabled.
func (r *Registry) RootBit() (int, bool) {
	if !r.rootReserved {
		return -1, false
	}
	return r.rootBit, true
}
