package permission

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrRoleManagerFrozen is returned by RegisterRole after Freeze.
var ErrRoleManagerFrozen = errors.New("role manager frozen")

// RoleManager maps role names to permission masks built from a [Registry].
//
// RoleManager instances are intended to be configured during initialization and then treated as immutable.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[string]Mask64
	frozen bool
}

// NewRoleManager creates an empty role table bound to registry.
func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[string]Mask64),
	}
}

// RegisterRole composes the mask for roleName from permissionNames. Every
// permission must already be registered.
func (rm *RoleManager) RegisterRole(roleName string, permissionNames []string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return ErrRoleManagerFrozen
	}

	if roleName == "" {
		return ErrEmptyName
	}

	if _, exists := rm.roles[roleName]; exists {
		return fmt.Errorf("%w: role %q", ErrDuplicate, roleName)
	}

	var mask Mask64
	for _, perm := range permissionNames {
		bit, ok := rm.registry.Bit(perm)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPermission, perm)
		}
		mask.Set(bit)
	}

	rm.roles[roleName] = mask
	return nil
}

/*
====================================
GET MASK FOR ROLE
*/

// Mask returns a copy of the mask registered for roleName.
func (rm *RoleManager) Mask(roleName string) (*Mask64, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	mask, ok := rm.roles[roleName]
	if !ok {
		return nil, false
	}
	return &mask, true
}

// Roles returns the registered role names, sorted.
func (rm *RoleManager) Roles() []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	out := make([]string, 0, len(rm.roles))
	for name := range rm.roles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

/*
====================================
FREEZE
*/

func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

/*
====================================
COUNT
*/

func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}
