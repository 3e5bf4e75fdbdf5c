package permission

import (
	"errors"
	"reflect"
	"testing"
)

func newTestRegistry(t *testing.T, rootReserved bool, names ...string) *Registry {
	t.Helper()
	r := NewRegistry(rootReserved)
	for _, name := range names {
		if _, err := r.Register(name); err != nil {
			t.Fatalf("register %q: %v", name, err)
		}
	}
	return r
}

func TestRegistryAssignsBitsInOrder(t *testing.T) {
	r := newTestRegistry(t, false, "read", "write", "delete")

	for i, name := range []string{"read", "write", "delete"} {
		bit, ok := r.Bit(name)
		if !ok || bit != i {
			t.Fatalf("Bit(%q) = %d,%v want %d", name, bit, ok, i)
		}
		back, ok := r.Name(i)
		if !ok || back != name {
			t.Fatalf("Name(%d) = %q,%v want %q", i, back, ok, name)
		}
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"read", "write", "delete"}) {
		t.Fatalf("Names() = %v", got)
	}
}

func TestRegistryRejectsInvalidRegistrations(t *testing.T) {
	r := newTestRegistry(t, false, "read")

	if _, err := r.Register(""); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	if _, err := r.Register("read"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	r.Freeze()
	if _, err := r.Register("write"); !errors.Is(err, ErrRegistryFrozen) {
		t.Fatalf("expected ErrRegistryFrozen, got %v", err)
	}
	if r.Count() != 1 {
		t.Fatalf("Count() = %d want 1", r.Count())
	}
}

func TestRegistryLimits(t *testing.T) {
	tests := []struct {
		name         string
		rootReserved bool
		capacity     int
	}{
		{name: "full width", rootReserved: false, capacity: 64},
		{name: "root reserved", rootReserved: true, capacity: 63},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(tt.rootReserved)
			for i := 0; i < tt.capacity; i++ {
				if _, err := r.Register("p" + string(rune('A'+i%26)) + string(rune('a'+i/26))); err != nil {
					t.Fatalf("register #%d: %v", i, err)
				}
			}
			if _, err := r.Register("overflow"); !errors.Is(err, ErrLimitExceeded) {
				t.Fatalf("expected ErrLimitExceeded, got %v", err)
			}
		})
	}
}

func TestRegistryExpandHonoursRootBit(t *testing.T) {
	r := newTestRegistry(t, true, "read", "write", "delete")

	var m Mask64
	bit, _ := r.Bit("write")
	m.Set(bit)
	if got := r.Expand(&m); !reflect.DeepEqual(got, []string{"write"}) {
		t.Fatalf("Expand = %v", got)
	}

	root, ok := r.RootBit()
	if !ok || root != 63 {
		t.Fatalf("RootBit = %d,%v", root, ok)
	}
	m.Set(root)
	if got := r.Expand(&m); !reflect.DeepEqual(got, []string{"read", "write", "delete"}) {
		t.Fatalf("Expand with root = %v", got)
	}
}

func TestRoleManager(t *testing.T) {
	r := newTestRegistry(t, false, "read", "write", "delete")
	r.Freeze()

	rm := NewRoleManager(r)
	if err := rm.RegisterRole("viewer", []string{"read"}); err != nil {
		t.Fatalf("register viewer: %v", err)
	}
	if err := rm.RegisterRole("admin", []string{"read", "write", "delete"}); err != nil {
		t.Fatalf("register admin: %v", err)
	}
	if err := rm.RegisterRole("ghost", []string{"fly"}); !errors.Is(err, ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission, got %v", err)
	}
	if err := rm.RegisterRole("viewer", nil); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	mask, ok := rm.Mask("viewer")
	if !ok {
		t.Fatal("viewer mask missing")
	}
	readBit, _ := r.Bit("read")
	writeBit, _ := r.Bit("write")
	if !mask.Has(readBit, false) || mask.Has(writeBit, false) {
		t.Fatalf("viewer mask = %b", mask.Raw())
	}

	// Mask returns a copy.
	mask.Set(writeBit)
	again, _ := rm.Mask("viewer")
	if again.Has(writeBit, false) {
		t.Fatal("mutating returned mask leaked into role table")
	}

	if got := rm.Roles(); !reflect.DeepEqual(got, []string{"admin", "viewer"}) {
		t.Fatalf("Roles() = %v", got)
	}

	rm.Freeze()
	if err := rm.RegisterRole("late", nil); !errors.Is(err, ErrRoleManagerFrozen) {
		t.Fatalf("expected ErrRoleManagerFrozen, got %v", err)
	}
	if rm.Count() != 2 {
		t.Fatalf("Count() = %d", rm.Count())
	}
}
