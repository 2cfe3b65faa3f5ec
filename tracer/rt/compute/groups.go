package compute

import "fmt"

// GroupCount is the number of work groups dispatched along x, y and z.
type GroupCount [3]uint32

// Total returns x*y*z.
func (g GroupCount) Total() uint64 {
	return uint64(g[0]) * uint64(g[1]) * uint64(g[2])
}

func (g GroupCount) String() string {
	return fmt.Sprintf("(%d, %d, %d)", g[0], g[1], g[2])
}

// ThreadGroups covers a width x height image with work groups of the given
// local size. Partial groups at the edges round up; z is always 1.
func ThreadGroups(width, height uint32, local [3]uint32) GroupCount {
	return GroupCount{ceilDiv(width, local[0]), ceilDiv(height, local[1]), 1}
}

func ceilDiv(n, d uint32) uint32 {
	if d == 0 {
		d = 1
	}
	return uint32((uint64(n) + uint64(d) - 1) / uint64(d))
}
