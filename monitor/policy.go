package monitor

import seatsnatch "github.com/snatchapp/Seat-Snatch-Go"

// A Policy decides whether freshly fetched counts represent a slot
// opening, and how large. Selected once per section from the owning
// course's reserved-seats flag.
type Policy interface {
	// ComputeOpening returns the number of newly available slots, never
	// negative, given the stored section state and the fetched counts.
	ComputeOpening(stored seatsnatch.Section, fetched seatsnatch.Counts) int
}

// StandardPolicy signals an opening whenever headroom (capacity minus
// enrollment) grows. Over-enrolled sections clamp to zero headroom, so a
// drop from 31/30 to 30/30 is not an opening.
type StandardPolicy struct{}

func (StandardPolicy) ComputeOpening(stored seatsnatch.Section, fetched seatsnatch.Counts) int {
	oldFree := stored.Capacity - stored.Enrollment
	if oldFree < 0 {
		oldFree = 0
	}
	newFree := fetched.Capacity - fetched.Enrollment
	if newFree < 0 {
		newFree = 0
	}
	if newFree <= oldFree {
		return 0
	}
	return newFree - oldFree
}

// ReservedSeatPolicy covers courses whose true capacity is hidden by an
// institutional reservation pool. Raw headroom is meaningless there;
// registration activity, visible as an enrollment increase over the
// last-seen marker, is the only signal that seats opened.
type ReservedSeatPolicy struct{}

func (ReservedSeatPolicy) ComputeOpening(stored seatsnatch.Section, fetched seatsnatch.Counts) int {
	if fetched.Enrollment <= stored.PrevEnrollment {
		return 0
	}
	return fetched.Enrollment - stored.PrevEnrollment
}

// PolicyFor selects the policy for a section's owning course.
func PolicyFor(course seatsnatch.Course) Policy {
	if course.HasReservedSeats {
		return ReservedSeatPolicy{}
	}
	return StandardPolicy{}
}
