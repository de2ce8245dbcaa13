package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
)

var _ seatsnatch.Channel = SMS{}

type SMS struct {
	client  *twilio.RestClient
	from    string
	baseURL string
	metrics *seatsnatch.Metrics
	log     zerolog.Logger
}

func NewSMS(accountSid, authToken, from, baseURL string, metrics *seatsnatch.Metrics, log zerolog.Logger) SMS {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSid,
		Password: authToken,
	})

	return SMS{client, from, baseURL, metrics, log.With().Str("channel", "sms").Logger()}
}

func (s SMS) Name() string {
	return "sms"
}

// Send texts the subscriber when a phone number is on file. A missing
// phone is not a failure; email is the only mandatory contact channel.
func (s SMS) Send(ctx context.Context, notice seatsnatch.Notice) bool {
	if notice.User.Phone == "" {
		return true
	}

	reserved := ""
	if notice.Course.HasReservedSeats {
		reserved = "This course has reserved seats, so enrollment may not be possible. "
	}

	var body string
	if notice.Resubbed {
		body = fmt.Sprintf("%s in %s has open spots! %sUnsubscribe: %s/dashboard",
			notice.Section.Name, notice.Course.DisplayName, reserved, s.baseURL)
	} else {
		body = fmt.Sprintf("%s in %s has open spots! %sResubscribe: %s/course?courseid=%s",
			notice.Section.Name, notice.Course.DisplayName, reserved, s.baseURL, notice.Course.ID)
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(notice.User.Phone)
	params.SetFrom(s.from)
	params.SetBody(body)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		s.log.Error().Err(err).Str("netid", notice.User.NetID).Msg("failed to send SMS")
		return false
	}

	s.metrics.SMSSent.Add(1)
	s.log.Info().Str("netid", notice.User.NetID).Msg("notification SMS sent")
	return true
}
