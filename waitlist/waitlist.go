// Package waitlist owns subscriptions: the link between a user's
// subscription set and a section's FIFO queue.
package waitlist

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
)

type Service struct {
	repo    seatsnatch.Repository
	maxSubs int
	locks   stripedLock
	log     zerolog.Logger
}

func NewService(repo seatsnatch.Repository, maxSubs int, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		maxSubs: maxSubs,
		log:     log.With().Str("component", "waitlist").Logger(),
	}
}

// Subscribe adds netid to the tail of classid's queue and classid to the
// user's subscription set. The admission rules:
//   - the user, section and course must exist
//   - the user must be under the subscription ceiling
//   - no duplicate subscriptions
//   - the owning course must not be disabled
//   - a standard section must be full (no point waitlisting an open one)
//   - a reserved-seat section must have enrollment > 0 (zero means it has
//     not opened for registration yet)
func (s *Service) Subscribe(ctx context.Context, netid, classid string) error {
	unlock := s.locks.lock(netid, classid)
	defer unlock()

	user, err := s.repo.GetUser(ctx, netid)
	if err != nil {
		return err
	}

	section, err := s.repo.GetSection(ctx, classid)
	if err != nil {
		return err
	}

	course, err := s.repo.GetCourse(ctx, section.CourseID)
	if err != nil {
		return err
	}

	if len(user.Waitlists) >= s.maxSubs {
		return fmt.Errorf("user %s has %d subscriptions: %w", netid, len(user.Waitlists), seatsnatch.ErrWaitlistFull)
	}
	if user.Subscribed(classid) {
		return fmt.Errorf("user %s, section %s: %w", netid, classid, seatsnatch.ErrAlreadySubscribed)
	}
	if course.Disabled {
		return fmt.Errorf("course %s: %w", course.ID, seatsnatch.ErrCourseDisabled)
	}
	if course.HasReservedSeats {
		if section.Enrollment == 0 {
			return fmt.Errorf("section %s: %w", classid, seatsnatch.ErrSectionNotOpened)
		}
	} else if !section.Full() {
		return fmt.Errorf("section %s: %w", classid, seatsnatch.ErrSectionNotFull)
	}

	if err := s.repo.AddSubscription(ctx, netid, classid); err != nil {
		return fmt.Errorf("failed to persist subscription: %w", err)
	}

	entry := fmt.Sprintf("Subscribed to %s %s", course.DisplayName, section.Name)
	if err := s.repo.AppendActivity(ctx, netid, seatsnatch.WaitlistLog, entry); err != nil {
		s.log.Error().Err(err).Str("netid", netid).Msg("failed to record subscribe activity")
	}

	s.log.Info().Str("netid", netid).Str("classid", classid).Msg("user subscribed")
	return nil
}

// Unsubscribe removes the subscription from both locations. The
// repository deletes the queue record once drained and resets the
// reserved-seat marker.
func (s *Service) Unsubscribe(ctx context.Context, netid, classid string) error {
	unlock := s.locks.lock(netid, classid)
	defer unlock()

	user, err := s.repo.GetUser(ctx, netid)
	if err != nil {
		return err
	}

	section, err := s.repo.GetSection(ctx, classid)
	if err != nil {
		return err
	}

	if !user.Subscribed(classid) {
		return fmt.Errorf("user %s, section %s: %w", netid, classid, seatsnatch.ErrNotSubscribed)
	}

	if err := s.repo.RemoveSubscription(ctx, netid, classid); err != nil {
		return fmt.Errorf("failed to remove subscription: %w", err)
	}

	course, err := s.repo.GetCourse(ctx, section.CourseID)
	if err == nil {
		entry := fmt.Sprintf("Unsubscribed from %s %s", course.DisplayName, section.Name)
		if err := s.repo.AppendActivity(ctx, netid, seatsnatch.WaitlistLog, entry); err != nil {
			s.log.Error().Err(err).Str("netid", netid).Msg("failed to record unsubscribe activity")
		}
	}

	s.log.Info().Str("netid", netid).Str("classid", classid).Msg("user unsubscribed")
	return nil
}

// SetCurrentSection records the section the user is enrolled in for a
// course, marking them as a swap-out candidate for that section.
func (s *Service) SetCurrentSection(ctx context.Context, netid, courseid, classid string) error {
	unlock := s.locks.lock(netid, classid)
	defer unlock()

	section, err := s.repo.GetSection(ctx, classid)
	if err != nil {
		return err
	}
	if section.CourseID != courseid {
		return fmt.Errorf("section %s is not part of course %s: %w", classid, courseid, seatsnatch.ErrNotFound)
	}

	if _, err := s.repo.GetUser(ctx, netid); err != nil {
		return err
	}

	if err := s.repo.SetCurrentSection(ctx, netid, courseid, classid); err != nil {
		return fmt.Errorf("failed to set current section: %w", err)
	}

	s.log.Info().Str("netid", netid).Str("courseid", courseid).Str("classid", classid).Msg("current section set")
	return nil
}

// ClearCurrentSection removes the user's current-section designation for
// a course along with the matching swap-out entry.
func (s *Service) ClearCurrentSection(ctx context.Context, netid, courseid string) error {
	unlock := s.locks.lock(netid, courseid)
	defer unlock()

	if _, err := s.repo.GetUser(ctx, netid); err != nil {
		return err
	}

	if err := s.repo.ClearCurrentSection(ctx, netid, courseid); err != nil {
		return err
	}

	s.log.Info().Str("netid", netid).Str("courseid", courseid).Msg("current section cleared")
	return nil
}

// stripedLock serializes compound two-location mutations for a given
// (user, section) pair without holding a global lock. Both stripes are
// always taken in index order to avoid deadlock.
type stripedLock struct {
	stripes [64]sync.Mutex
}

func (l *stripedLock) lock(a, b string) func() {
	i, j := stripe(a), stripe(b)
	if i > j {
		i, j = j, i
	}
	l.stripes[i].Lock()
	if j != i {
		l.stripes[j].Lock()
	}
	return func() {
		if j != i {
			l.stripes[j].Unlock()
		}
		l.stripes[i].Unlock()
	}
}

func stripe(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % 64)
}
