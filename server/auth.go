package server

import (
	"context"
	"errors"
	"strings"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
)

var _ seatsnatch.AuthProvider = RemoteUserAuth{}

// RemoteUserAuth trusts the identity header set by the SSO proxy in front
// of the service. The proxy has already authenticated the user; this only
// normalizes and validates the value it forwarded.
type RemoteUserAuth struct{}

func NewRemoteUserAuth() RemoteUserAuth {
	return RemoteUserAuth{}
}

func (a RemoteUserAuth) Identify(ctx context.Context, token string) (string, error) {
	netid := strings.ToLower(strings.TrimSpace(token))
	if netid == "" {
		return "", errors.New("no identity on request")
	}
	return netid, nil
}
