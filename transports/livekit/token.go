package livekit

import (
	"errors"
	"time"

	"github.com/livekit/protocol/auth"
)

// DevToken mints a participant token from LiveKit API credentials. It lets a
// session join a self-hosted LiveKit server directly, bypassing negotiation.
type DevToken struct {
	APIKey    string
	APISecret string
	Room      string
	Identity  string
	Name      string
	ValidFor  time.Duration
}

func (d DevToken) JWT() (string, error) {
	if d.APIKey == "" || d.APISecret == "" {
		return "", errors.New("livekit: api key and secret are required to mint a token")
	}
	if d.Room == "" || d.Identity == "" {
		return "", errors.New("livekit: room and identity are required to mint a token")
	}
	validFor := d.ValidFor
	if validFor <= 0 {
		validFor = time.Hour
	}
	return auth.NewAccessToken(d.APIKey, d.APISecret).
		SetIdentity(d.Identity).
		SetName(d.Name).
		SetValidFor(validFor).
		SetVideoGrant(&auth.VideoGrant{
			RoomJoin:       true,
			Room:           d.Room,
			CanPublishData: boolPtr(true),
		}).
		ToJWT()
}

func boolPtr(b bool) *bool { return &b }
