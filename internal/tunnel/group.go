package tunnel

import "time"

// slot is one packet position within a group: a fixed-capacity buffer
// plus the actual inner-datagram size. A size of zero uniquely means
// "empty/erased".
type slot struct {
	data []byte
	size int
}

func (s *slot) empty() bool { return s.size == 0 }

func (s *slot) set(payload []byte) {
	n := copy(s.data, payload)
	s.size = n
}

func (s *slot) clear() {
	s.size = 0
}

// group is TotalSize slots plus a timestamp, identified on the wire by
// seq and indexed in the receive window by seq mod HistSize.
type group struct {
	slots [TotalSize]slot
	age   time.Time
}

func newGroup() *group {
	g := &group{}
	for i := range g.slots {
		g.slots[i].data = make([]byte, PayloadSize)
	}
	return g
}

// maxWidth returns the widest payload currently present in the group,
// which sets the FEC codec's column count.
func (g *group) maxWidth() int {
	max := 0
	for i := range g.slots {
		if g.slots[i].size > max {
			max = g.slots[i].size
		}
	}
	return max
}

// count returns the number of non-empty slots.
func (g *group) count() int {
	n := 0
	for i := range g.slots {
		if !g.slots[i].empty() {
			n++
		}
	}
	return n
}

// missingIndices lists the indices of empty slots, used by the
// forced-reset extended report.
func (g *group) missingIndices() []int {
	var missing []int
	for i := range g.slots {
		if g.slots[i].empty() {
			missing = append(missing, i)
		}
	}
	return missing
}
