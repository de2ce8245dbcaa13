// Package trade implements peer-to-peer section-trade matching.
package trade

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
)

type Matcher struct {
	repo seatsnatch.Repository
	log  zerolog.Logger
}

func NewMatcher(repo seatsnatch.Repository, log zerolog.Logger) *Matcher {
	return &Matcher{repo: repo, log: log.With().Str("component", "trade").Logger()}
}

// FindMatches returns every user willing to swap into netid's current
// section of courseid, out of a section netid is waitlisted for. A match
// is mutual: the candidate's current section must be one netid wants, and
// netid's current section must be one the candidate wants. Pure read; no
// state is mutated.
func (m *Matcher) FindMatches(ctx context.Context, netid, courseid string) ([]seatsnatch.Match, error) {
	user, err := m.repo.GetUser(ctx, netid)
	if err != nil {
		return nil, err
	}

	curr, ok := user.CurrentSections[courseid]
	if !ok {
		return nil, fmt.Errorf("user %s, course %s: %w", netid, courseid, seatsnatch.ErrNoCurrentSection)
	}

	// the sections of this course the user is waiting for
	var targets []seatsnatch.Section
	for _, classid := range user.Waitlists {
		if classid == curr {
			// swapping into your own section is meaningless
			continue
		}
		section, err := m.repo.GetSection(ctx, classid)
		if err != nil {
			return nil, err
		}
		if section.CourseID == courseid {
			targets = append(targets, section)
		}
	}

	var matches []seatsnatch.Match
	seen := map[string]bool{}
	for _, target := range targets {
		for _, candidate := range target.SwapOut {
			if candidate == netid {
				continue
			}

			other, err := m.repo.GetUser(ctx, candidate)
			if err != nil {
				return nil, err
			}
			if !other.Subscribed(curr) {
				continue
			}

			// one user presenting several current sections for the same
			// course means the swap_out index is corrupt
			if seen[candidate] {
				m.log.Error().Str("netid", candidate).Str("courseid", courseid).
					Msg("duplicate trade match: swap_out index is corrupt")
				return nil, fmt.Errorf("user %s matched twice for course %s: %w",
					candidate, courseid, seatsnatch.ErrInconsistentState)
			}
			seen[candidate] = true

			matches = append(matches, seatsnatch.Match{
				NetID:       candidate,
				SectionName: target.Name,
				Email:       other.Email,
			})
		}
	}

	if len(matches) == 0 {
		m.log.Debug().Str("netid", netid).Str("courseid", courseid).Msg("no matches found")
	} else {
		m.log.Info().Str("netid", netid).Str("courseid", courseid).Int("count", len(matches)).Msg("matches found")
	}

	return matches, nil
}

// Contact records that netid reached out to match about swapping
// sections. Contacting is the explicit user action that follows a match;
// it only appends to both users' trade logs.
func (m *Matcher) Contact(ctx context.Context, netid, matchNetid, courseid string) error {
	course, err := m.repo.GetCourse(ctx, courseid)
	if err != nil {
		return err
	}
	if _, err := m.repo.GetUser(ctx, matchNetid); err != nil {
		return err
	}

	entry := fmt.Sprintf("You contacted %s about a trade in %s", matchNetid, course.DisplayName)
	if err := m.repo.AppendActivity(ctx, netid, seatsnatch.TradeLog, entry); err != nil {
		return fmt.Errorf("failed to record trade contact: %w", err)
	}

	entry = fmt.Sprintf("%s contacted you about a trade in %s", netid, course.DisplayName)
	if err := m.repo.AppendActivity(ctx, matchNetid, seatsnatch.TradeLog, entry); err != nil {
		return fmt.Errorf("failed to record trade contact: %w", err)
	}

	m.log.Info().Str("netid", netid).Str("match", matchNetid).Str("courseid", courseid).Msg("trade contact recorded")
	return nil
}
