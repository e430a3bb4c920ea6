package room

import (
	"time"

	"github.com/livekit/protocol/auth"
)

// Capabilities describe what a credential lets its holder do in the room.
type Capabilities struct {
	Publish   bool
	Subscribe bool
	Hidden    bool
}

const tokenTTL = time.Hour

type authProvider struct {
	APIKey    string
	APISecret string
}

func createAuthProvider(key string, secret string) *authProvider {
	return &authProvider{key, secret}
}

func (p *authProvider) buildToken(room string, identity string, caps Capabilities) (string, error) {
	at := auth.NewAccessToken(p.APIKey, p.APISecret)
	grant := &auth.VideoGrant{
		Room:           room,
		RoomJoin:       true,
		CanPublish:     &caps.Publish,
		CanPublishData: &caps.Publish,
		CanSubscribe:   &caps.Subscribe,
		Hidden:         caps.Hidden,
	}
	return at.
		AddGrant(grant).
		SetIdentity(identity).
		SetValidFor(tokenTTL).
		ToJWT()
}
