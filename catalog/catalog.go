// Package catalog runs the bulk course ingestion job: a full refresh of
// courses and sections for the current term. It is a separate data-load
// concern, not part of the waitlist engine's request path.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
	"github.com/snatchapp/Seat-Snatch-Go/registrar"
)

// fetches for different subjects are independent, so a small pool
// parallelizes the refresh without hammering the upstream
const defaultWorkers = 8

type Loader struct {
	repo    seatsnatch.Repository
	client  registrar.Client
	workers int
	log     zerolog.Logger
}

func NewLoader(repo seatsnatch.Repository, client registrar.Client, log zerolog.Logger) *Loader {
	return &Loader{
		repo:    repo,
		client:  client,
		workers: defaultWorkers,
		log:     log.With().Str("component", "catalog").Logger(),
	}
}

// Refresh pulls every subject of the current term and upserts its courses
// and sections. Existing waitlists, trade state and reserved-seat markers
// survive a refresh.
func (l *Loader) Refresh(ctx context.Context) error {
	code, name, err := l.client.CurrentTerm(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve current term: %w", err)
	}

	if err := l.repo.SetTerm(ctx, code, name); err != nil {
		return fmt.Errorf("failed to record term: %w", err)
	}

	subjects, err := l.client.Subjects(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to list subjects: %w", err)
	}

	l.log.Info().Str("term", code).Int("subjects", len(subjects)).Msg("starting catalog refresh")
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)

	for _, subject := range subjects {
		subject := subject
		g.Go(func() error {
			if err := l.refreshSubject(gctx, code, subject); err != nil {
				// one bad subject should not abort the whole refresh
				l.log.Error().Err(err).Str("subject", subject).Msg("subject refresh failed")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	l.log.Info().Dur("elapsed", time.Since(start)).Msg("catalog refresh complete")
	return nil
}

func (l *Loader) refreshSubject(ctx context.Context, term, subject string) error {
	courses, err := l.client.Courses(ctx, term, subject)
	if err != nil {
		return fmt.Errorf("failed to fetch courses for %s: %w", subject, err)
	}

	for _, payload := range courses {
		course := seatsnatch.Course{
			ID:               payload.CourseID,
			DisplayName:      displayName(payload),
			Title:            payload.Title,
			HasReservedSeats: payload.SeatReservations == "Y",
			UpdatedAt:        time.Now(),
		}

		if err := l.repo.UpsertCourse(ctx, course); err != nil {
			return fmt.Errorf("failed to upsert course %s: %w", course.ID, err)
		}

		for _, class := range payload.Classes {
			// dummy placeholder sections end with 99; zero-capacity
			// sections are not open for registration at all
			if strings.HasSuffix(class.Section, "99") || class.Capacity == 0 {
				continue
			}

			section := seatsnatch.Section{
				ClassID:    class.ClassNumber,
				CourseID:   payload.CourseID,
				Name:       class.Section,
				Type:       class.TypeName,
				Enrollment: class.Enrollment,
				Capacity:   class.Capacity,
			}
			if err := l.repo.UpsertSection(ctx, section); err != nil {
				return fmt.Errorf("failed to upsert section %s: %w", class.ClassNumber, err)
			}
		}
	}

	l.log.Debug().Str("subject", subject).Int("courses", len(courses)).Msg("subject refreshed")
	return nil
}

// displayName is the subject plus catalog number, with crosslistings
// appended ("COS333/ECE333").
func displayName(payload registrar.CoursePayload) string {
	name := payload.Subject + payload.CatalogNumber
	for _, x := range payload.Crosslistings {
		name += "/" + x.Subject + x.CatalogNumber
	}
	return name
}
