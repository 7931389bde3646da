package tunnel

import (
	"time"

	"go.uber.org/zap"
)

// Modular 32-bit sequence comparison: a is ordered before b when the
// forward distance from a to b, taken mod 2^32, is less than half the
// space — this is what lets a 32-bit counter wrap around cleanly.

func seqBeforeOrEqual(a, b uint32) bool {
	return (b - a) < 0x80000000
}

func seqBefore(a, b uint32) bool {
	return seqBeforeOrEqual(a, b) && a != b
}

func seqAfter(a, b uint32) bool {
	return seqBefore(b, a)
}

func seqAfterOrEqual(a, b uint32) bool {
	return seqBeforeOrEqual(b, a)
}

// window is the receiver's sliding array of HistSize slots, indexed by
// seq mod HistSize, plus the sequence bookkeeping and cumulative
// counters for the receiver as a whole.
type window struct {
	groups [HistSize]*group
	// counts tracks every packet *arrival* for a group, independent of
	// how many distinct slot indices it filled — a duplicate idx
	// before the group reaches TotalSize still increments this.
	counts  [HistSize]int
	maxSize [HistSize]int

	seqRcv      uint32
	seqFirst    uint32
	firstSeen   bool
	lastReceive time.Time

	rcvTotal uint64
	rcvRec   uint64
	rcvFail  uint64

	logger *zap.Logger
}

func newWindow(logger *zap.Logger) *window {
	return &window{logger: logger}
}

func gidOf(seq uint32) uint16 {
	return uint16(seq % HistSize)
}

// ensureGroup lazily allocates the group buffer for gid on the first
// packet of that group.
func (w *window) ensureGroup(gid uint16) *group {
	// recycle frees the buffer only for groups that ended short of
	// DataSize, so a completed group's buffer can still be here when
	// its slot is reused; any existing buffer is dropped, not reused.
	w.groups[gid] = newGroup()
	return w.groups[gid]
}

// recycle accounts a window slot's outcome into rcvTotal/rcvRec/rcvFail
// before clearing it, excluding the two boundary slots (seqRcv,
// seqFirst) from rcvFail accounting because they are expected to
// still be in flight or at epoch.
func (w *window) recycle(gid uint16) {
	count := w.counts[gid]
	switch {
	case count == 0:
		// nothing to do
	case count == TotalSize:
		w.rcvTotal += DataSize
	case count >= DataSize:
		w.rcvTotal += DataSize
		w.rcvRec++
	default:
		boundary := gid == gidOf(w.seqRcv) || gid == gidOf(w.seqFirst)
		if !boundary {
			w.rcvFail += uint64(DataSize - count)
			if w.logger != nil {
				w.logger.Warn("unrepairable group recycled",
					zap.Uint16("gid", gid),
					zap.Int("received", count),
					zap.Error(ErrUnrepairableGroup))
			}
		}
		w.rcvTotal += uint64(count)
		w.groups[gid] = nil
	}
	w.counts[gid] = 0
	w.maxSize[gid] = 0
}

// recycleAll recycles every window slot, used on resync.
func (w *window) recycleAll() {
	for i := 0; i < HistSize; i++ {
		w.recycle(uint16(i))
	}
}

// recycleRange recycles every slot in the open interval (from, to]
// (identified by their raw sequence numbers, not just gid), used when
// the window advances past a gap of skipped sequences.
func (w *window) recycleRange(from, to uint32) {
	for s := from + 1; ; s++ {
		w.recycle(gidOf(s))
		if s == to {
			break
		}
	}
}

func (w *window) resetCounters() {
	w.rcvTotal, w.rcvRec, w.rcvFail = 0, 0, 0
}

// partialSlot describes one not-yet-complete, not-empty window slot
// for the forced-reset extended report.
type partialSlot struct {
	seq     uint32
	count   int
	missing []int
}

// partialEntries reconstructs each slot's absolute group sequence from
// seqRcv's high 16 bits and returns every slot with 0 < count < TotalSize.
func (w *window) partialEntries() []partialSlot {
	var entries []partialSlot
	histSeq := uint32(w.seqRcv >> 16)
	curGrp := w.seqRcv & 0xFFFF
	for i := 0; i < HistSize; i++ {
		seqHi := histSeq
		if uint32(i) > curGrp {
			seqHi--
		}
		count := w.counts[i]
		if count == 0 || count == TotalSize {
			continue
		}
		var missing []int
		if grp := w.groups[i]; grp != nil {
			missing = grp.missingIndices()
		}
		entries = append(entries, partialSlot{
			seq:     (seqHi << 16) | uint32(i),
			count:   count,
			missing: missing,
		})
	}
	return entries
}
