package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
)

var _ seatsnatch.Channel = Email{}

type Email struct {
	host     string
	port     int
	username string
	password string
	from     string
	baseURL  string
	metrics  *seatsnatch.Metrics
	log      zerolog.Logger
}

func NewEmail(host, username, password, from, baseURL string, port int, metrics *seatsnatch.Metrics, log zerolog.Logger) Email {
	return Email{host, port, username, password, from, baseURL, metrics, log.With().Str("channel", "email").Logger()}
}

func (e Email) Name() string {
	return "email"
}

// Send emails the subscriber about the opening. The body varies on two
// axes: whether the course has reserved seats (enrollment may still not
// be possible) and whether the user auto-resubscribes (unsubscribe vs
// resubscribe deep link).
func (e Email) Send(ctx context.Context, notice seatsnatch.Notice) bool {
	if notice.User.Email == "" {
		e.log.Warn().Str("netid", notice.User.NetID).Msg("subscriber has no email address")
		return false
	}

	reserved := ""
	if notice.Course.HasReservedSeats {
		reserved = "This course has reserved seats, so enrollment may not be possible.\n\n"
	}

	var action string
	if notice.Resubbed {
		action = fmt.Sprintf("You will keep receiving alerts for this section. Unsubscribe: %s/dashboard", e.baseURL)
	} else {
		action = fmt.Sprintf("You have been removed from this waitlist. Resubscribe: %s/course?courseid=%s", e.baseURL, notice.Course.ID)
	}

	msg := []byte(fmt.Sprintf(`From: %s
To: %s
Subject: Spots open in %s %s

Hello %s,

%d spot(s) just opened in %s %s (%s). Head to your registration system to claim one!

%s%s
`, e.from, notice.User.Email, notice.Course.DisplayName, notice.Section.Name,
		notice.User.NetID, notice.Slots, notice.Course.DisplayName, notice.Section.Name,
		notice.Course.Title, reserved, action))

	auth := smtp.PlainAuth("", e.username, e.password, e.host)
	err := smtp.SendMail(fmt.Sprintf("%s:%d", e.host, e.port), auth, e.from, []string{notice.User.Email}, msg)
	if err != nil {
		e.log.Error().Err(err).Str("netid", notice.User.NetID).Msg("failed to send email")
		return false
	}

	e.metrics.EmailsSent.Add(1)
	e.log.Info().Str("netid", notice.User.NetID).Msg("notification email sent")
	return true
}
