package seatsnatch

import "errors"

// Engine error taxonomy. Operations at the API boundary convert these to
// a failed boolean result; they never escape as a crash.
var (
	// ErrNotFound marks an unknown user, section or course.
	ErrNotFound = errors.New("not found")

	// Validation failures
	ErrAlreadySubscribed = errors.New("user is already subscribed to this section")
	ErrNotSubscribed     = errors.New("user is not subscribed to this section")
	ErrWaitlistFull      = errors.New("user has reached the subscription ceiling")
	ErrCourseDisabled    = errors.New("subscriptions are disabled for this course")
	ErrSectionNotFull    = errors.New("section is not full")
	ErrSectionNotOpened  = errors.New("reserved section has not opened for registration")
	ErrNoCurrentSection  = errors.New("user has no current section for this course")

	// ErrUpstreamUnavailable marks a failed fetch from the external
	// course data source. The monitor swallows it and retries on the
	// next trigger.
	ErrUpstreamUnavailable = errors.New("course data source unavailable")

	// ErrInconsistentState marks an invariant violation detected at read
	// time. It must be logged loudly; it signals data corruption.
	ErrInconsistentState = errors.New("inconsistent store state")
)

// IsValidation reports whether err is a business-rule violation rather
// than a missing record or an infrastructure failure.
func IsValidation(err error) bool {
	for _, v := range []error{
		ErrAlreadySubscribed,
		ErrNotSubscribed,
		ErrWaitlistFull,
		ErrCourseDisabled,
		ErrSectionNotFull,
		ErrSectionNotOpened,
		ErrNoCurrentSection,
	} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}
