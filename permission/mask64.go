package permission

// Mask64 is a set of up to 64 permission bits.
type Mask64 uint64

// Has reports whether bit is set. With rootReserved, the highest bit grants
// every permission.
func (m *Mask64) Has(bit int, rootReserved bool) bool {
	if bit < 0 || bit >= MaxBits {
		return false
	}

	if rootReserved {
		// root bit = highest bit
		if (*m & (1 << (MaxBits - 1))) != 0 {
			return true
		}
	}

	return (*m & (1 << bit)) != 0
}

func (m *Mask64) Set(bit int) {
	if bit < 0 || bit >= MaxBits {
		return
	}
	*m |= (1 << bit)
}

func (m *Mask64) Clear(bit int) {
	if bit < 0 || bit >= MaxBits {
		return
	}
	*m &^= (1 << bit)
}

func (m *Mask64) Raw() uint64 {
	return uint64(*m)
}

// Bits returns the set bit positions in ascending order.
func (m *Mask64) Bits() []int {
	var bits []int
	for bit := 0; bit < MaxBits; bit++ {
		if (*m & (1 << bit)) != 0 {
			bits = append(bits, bit)
		}
	}
	return bits
}
