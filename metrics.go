package seatsnatch

import "sync/atomic"

// Metrics is the observability collaborator injected into components at
// construction. Counters are monotonic for the process lifetime.
type Metrics struct {
	SectionsPolled    atomic.Int64
	OpeningsDetected  atomic.Int64
	NotificationsSent atomic.Int64
	EmailsSent        atomic.Int64
	SMSSent           atomic.Int64
	SendFailures      atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Snapshot returns a point-in-time copy of all counters, keyed for the
// status endpoint.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"sections_polled":    m.SectionsPolled.Load(),
		"openings_detected":  m.OpeningsDetected.Load(),
		"notifications_sent": m.NotificationsSent.Load(),
		"emails_sent":        m.EmailsSent.Load(),
		"sms_sent":           m.SMSSent.Load(),
		"send_failures":      m.SendFailures.Load(),
	}
}
