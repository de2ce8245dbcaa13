package notify

import (
	"context"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
)

var _ seatsnatch.Channel = Noop{}

// Noop is a channel for local development that delivers nothing.
type Noop struct{}

func NewNoop() Noop {
	return Noop{}
}

func (n Noop) Name() string {
	return "noop"
}

func (n Noop) Send(ctx context.Context, notice seatsnatch.Notice) bool {
	return true
}
