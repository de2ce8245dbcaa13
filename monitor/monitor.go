// Package monitor detects enrollment changes by polling the external
// course data source. There is no internal timer: checks are triggered by
// traffic (course page views) or by a cron-driven sweep, at most one fetch
// per refresh interval per section.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
)

type Monitor struct {
	repo       seatsnatch.Repository
	source     seatsnatch.CourseDataService
	dispatcher seatsnatch.Dispatcher
	interval   time.Duration
	metrics    *seatsnatch.Metrics
	log        zerolog.Logger

	mu        sync.Mutex
	lastFetch map[string]time.Time
	inflight  map[string]bool
}

func New(repo seatsnatch.Repository, source seatsnatch.CourseDataService, dispatcher seatsnatch.Dispatcher,
	interval time.Duration, metrics *seatsnatch.Metrics, log zerolog.Logger) *Monitor {
	return &Monitor{
		repo:       repo,
		source:     source,
		dispatcher: dispatcher,
		interval:   interval,
		metrics:    metrics,
		log:        log.With().Str("component", "monitor").Logger(),
		lastFetch:  map[string]time.Time{},
		inflight:   map[string]bool{},
	}
}

// Pull refreshes one section if it has gone stale. Fetch failures are
// swallowed: the section stays stale and the next trigger retries, so a
// flaky upstream never breaks the page that triggered the check.
func (m *Monitor) Pull(ctx context.Context, classid string) {
	if !m.claim(classid) {
		return
	}

	changed, err := m.check(ctx, classid)
	m.release(classid, err == nil)
	if err != nil {
		m.log.Warn().Err(err).Str("classid", classid).Msg("section check failed, will retry on next trigger")
		return
	}
	if changed {
		m.log.Info().Str("classid", classid).Msg("section refreshed")
	}
}

// PullCourse refreshes every stale section of a course, the path taken on
// a course page view. Counts for the whole course come back in one
// upstream query rather than one per section.
func (m *Monitor) PullCourse(ctx context.Context, courseid string) {
	sections, err := m.repo.SectionsInCourse(ctx, courseid)
	if err != nil {
		m.log.Warn().Err(err).Str("courseid", courseid).Msg("failed to list sections for pull")
		return
	}

	var claimed []string
	for _, section := range sections {
		if m.claim(section.ClassID) {
			claimed = append(claimed, section.ClassID)
		}
	}
	if len(claimed) == 0 {
		return
	}

	counts, err := m.source.CourseCounts(ctx, courseid)
	if err != nil {
		for _, classid := range claimed {
			m.release(classid, false)
		}
		m.log.Warn().Err(err).Str("courseid", courseid).Msg("course check failed, will retry on next trigger")
		return
	}

	for _, classid := range claimed {
		fetched, ok := counts[classid]
		if !ok {
			// the upstream no longer reports this section; leave it stale
			m.release(classid, false)
			m.log.Warn().Str("classid", classid).Str("courseid", courseid).Msg("section missing from course counts")
			continue
		}
		err := m.apply(ctx, classid, fetched)
		m.release(classid, err == nil)
		if err != nil {
			m.log.Warn().Err(err).Str("classid", classid).Msg("section check failed, will retry on next trigger")
		}
	}
}

// Sweep checks every section that has a non-empty waitlist. Meant to be
// driven by a cron job hitting the trigger endpoint.
func (m *Monitor) Sweep(ctx context.Context) error {
	classids, err := m.repo.WaitedSections(ctx)
	if err != nil {
		return fmt.Errorf("failed to get waited sections: %w", err)
	}

	if len(classids) == 0 {
		m.log.Info().Msg("no waited sections")
		return nil
	}

	for _, classid := range classids {
		m.Pull(ctx, classid)
	}
	return nil
}

// claim transitions a stale section to FETCHING. It returns false when the
// section is FRESH or another caller already has a fetch in flight.
func (m *Monitor) claim(classid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inflight[classid] {
		return false
	}
	if last, ok := m.lastFetch[classid]; ok && time.Since(last) < m.interval {
		return false
	}
	m.inflight[classid] = true
	return true
}

// release finishes a fetch; only a successful one makes the section FRESH.
func (m *Monitor) release(classid string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.inflight, classid)
	if ok {
		m.lastFetch[classid] = time.Now()
	}
}

// check fetches live counts for one stale section and applies them.
func (m *Monitor) check(ctx context.Context, classid string) (bool, error) {
	fetched, err := m.source.SectionCounts(ctx, classid)
	if err != nil {
		return false, fmt.Errorf("failed to fetch counts for %s: %w", classid, err)
	}
	if err := m.apply(ctx, classid, fetched); err != nil {
		return false, err
	}
	return true, nil
}

// apply persists freshly fetched counts for a section and dispatches
// notifications when the policy reports an opening.
func (m *Monitor) apply(ctx context.Context, classid string, fetched seatsnatch.Counts) error {
	stored, err := m.repo.GetSection(ctx, classid)
	if err != nil {
		return err
	}

	course, err := m.repo.GetCourse(ctx, stored.CourseID)
	if err != nil {
		return err
	}
	m.metrics.SectionsPolled.Add(1)

	delta := PolicyFor(course).ComputeOpening(stored, fetched)

	// stored values stay current even when nothing opened
	if err := m.repo.UpdateEnrollment(ctx, classid, fetched.Enrollment, fetched.Capacity); err != nil {
		return err
	}
	if course.HasReservedSeats {
		// the marker moves only after the delta is computed
		if err := m.repo.SetPrevEnrollment(ctx, classid, fetched.Enrollment); err != nil {
			return err
		}
	}

	if delta <= 0 {
		return nil
	}

	m.metrics.OpeningsDetected.Add(1)
	m.log.Info().Str("classid", classid).Int("slots", delta).Msg("slot opening detected")

	waitlist, err := m.repo.Waitlist(ctx, classid)
	if err != nil {
		return err
	}
	if len(waitlist) == 0 {
		return nil
	}

	if err := m.dispatcher.Notify(ctx, classid, delta); err != nil {
		// notification problems are logged, not retried
		m.log.Error().Err(err).Str("classid", classid).Msg("failed to notify waitlist")
	}

	return nil
}
