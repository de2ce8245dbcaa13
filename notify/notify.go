// Package notify delivers slot-opening notifications to waitlisted users.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
)

var _ seatsnatch.Dispatcher = (*Dispatcher)(nil)

type Dispatcher struct {
	repo     seatsnatch.Repository
	channels []seatsnatch.Channel
	metrics  *seatsnatch.Metrics
	log      zerolog.Logger
}

func NewDispatcher(repo seatsnatch.Repository, metrics *seatsnatch.Metrics, log zerolog.Logger, channels ...seatsnatch.Channel) *Dispatcher {
	return &Dispatcher{
		repo:     repo,
		channels: channels,
		metrics:  metrics,
		log:      log.With().Str("component", "notify").Logger(),
	}
}

// Notify alerts every current subscriber of classid that slots opened.
// The engine never reserves seats, it only informs, so all subscribers are
// notified on every opening; seat acquisition happens on the institution's
// own registration system. Subscribers without auto-resubscribe are
// removed from the queue as part of delivery. One subscriber's delivery
// failure never blocks the rest.
func (d *Dispatcher) Notify(ctx context.Context, classid string, slots int) error {
	section, err := d.repo.GetSection(ctx, classid)
	if err != nil {
		return err
	}

	course, err := d.repo.GetCourse(ctx, section.CourseID)
	if err != nil {
		return err
	}

	waitlist, err := d.repo.Waitlist(ctx, classid)
	if err != nil {
		return err
	}
	if len(waitlist) == 0 {
		return nil
	}

	entry := fmt.Sprintf("%d spots available in %s %s", slots, course.DisplayName, section.Name)

	failures := 0
	for _, netid := range waitlist {
		user, err := d.repo.GetUser(ctx, netid)
		if err != nil {
			d.log.Error().Err(err).Str("netid", netid).Msg("failed to load subscriber, skipping")
			failures++
			continue
		}

		if err := d.repo.AppendActivity(ctx, netid, seatsnatch.WaitlistLog, entry); err != nil {
			d.log.Error().Err(err).Str("netid", netid).Msg("failed to record notification activity")
		}

		notice := seatsnatch.Notice{
			User:     user,
			Course:   course,
			Section:  section,
			Slots:    slots,
			Resubbed: user.AutoResub,
		}

		delivered := true
		for _, channel := range d.channels {
			if !channel.Send(ctx, notice) {
				delivered = false
				d.metrics.SendFailures.Add(1)
				d.log.Error().Str("netid", netid).Str("channel", channel.Name()).Msg("delivery failed")
			}
		}

		// removal is coupled with delivery unless the user opted to stay
		if !user.AutoResub {
			if err := d.repo.RemoveSubscription(ctx, netid, classid); err != nil {
				d.log.Error().Err(err).Str("netid", netid).Str("classid", classid).
					Msg("failed to remove notified subscriber")
				failures++
				continue
			}
		}

		if delivered {
			d.metrics.NotificationsSent.Add(1)
		} else {
			failures++
		}
	}

	d.log.Info().Str("classid", classid).Int("slots", slots).
		Int("subscribers", len(waitlist)).Int("failures", failures).
		Msg("waitlist notified")

	if failures > 0 {
		return fmt.Errorf("%d of %d notifications failed for section %s", failures, len(waitlist), classid)
	}
	return nil
}
