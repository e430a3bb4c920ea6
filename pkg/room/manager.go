package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go"
)

// Class determines what a room is for. A caller's journey moves through
// lobby and screening rooms before the episode's single on-air room.
type Class string

const (
	ClassLobby     Class = "lobby"
	ClassScreening Class = "screening"
	ClassOnAir     Class = "on-air"
)

var ErrRoomOccupied = errors.New("room still has members")
var ErrUrlMustHaveWS = errors.New("url must contain either ws:// or wss://")

type Manager interface {
	// CreateRoom is idempotent: an existing room of the same name is
	// returned as success, whatever its class.
	CreateRoom(ctx context.Context, name string, class Class) error

	// IssueToken returns a short-lived signed credential scoped to one
	// room and identity.
	IssueToken(room string, identity string, caps Capabilities) (string, error)

	// DestroyRoom deletes an empty room. An occupied room is marked for
	// deferred destruction when its last member leaves.
	DestroyRoom(ctx context.Context, name string) error

	// Members lists the identities currently in the room.
	Members(ctx context.Context, name string) ([]string, error)

	// ClassOf reports the locally tracked class for a room.
	ClassOf(name string) (Class, bool)

	// MemberLeft is fed from fabric events so deferred destruction can run.
	MemberLeft(ctx context.Context, name string)

	URL() string
}

// roomAPI is the slice of the fabric's room service the manager needs.
type roomAPI interface {
	CreateRoom(ctx context.Context, req *livekit.CreateRoomRequest) (*livekit.Room, error)
	DeleteRoom(ctx context.Context, req *livekit.DeleteRoomRequest) (*livekit.DeleteRoomResponse, error)
	ListParticipants(ctx context.Context, req *livekit.ListParticipantsRequest) (*livekit.ListParticipantsResponse, error)
}

type manager struct {
	url  string
	auth *authProvider

	lock    sync.Mutex
	classes map[string]Class
	doomed  map[string]bool

	svc roomAPI
}

const createRetries = 3
const createBackoff = 500 * time.Millisecond

func httpUrlFromWS(url string) string {
	if strings.Contains(url, "ws://") {
		return strings.ReplaceAll(url, "ws://", "http://")
	} else if strings.Contains(url, "wss://") {
		return strings.ReplaceAll(url, "wss://", "https://")
	}
	return ""
}

func NewManager(url string, apiKey string, apiSecret string) (Manager, error) {
	httpUrl := httpUrlFromWS(url)
	if httpUrl == "" {
		return nil, ErrUrlMustHaveWS
	}
	return &manager{
		url:     url,
		auth:    createAuthProvider(apiKey, apiSecret),
		classes: make(map[string]Class),
		doomed:  make(map[string]bool),
		svc:     lksdk.NewRoomServiceClient(httpUrl, apiKey, apiSecret),
	}, nil
}

func (m *manager) URL() string {
	return m.url
}

func (m *manager) CreateRoom(ctx context.Context, name string, class Class) error {
	// Existence is a prerequisite for admission, so creation retries with
	// bounded backoff before giving up.
	var err error
	for attempt := 0; attempt < createRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(createBackoff << (attempt - 1)):
			}
		}
		_, err = m.svc.CreateRoom(ctx, &livekit.CreateRoomRequest{Name: name})
		if err == nil {
			m.lock.Lock()
			m.classes[name] = class
			delete(m.doomed, name)
			m.lock.Unlock()
			return nil
		}
		log.Warnf("room create failed | room: %s, attempt: %d, error: %v", name, attempt+1, err)
	}
	return fmt.Errorf("create room %s: %w", name, err)
}

func (m *manager) IssueToken(room string, identity string, caps Capabilities) (string, error) {
	return m.auth.buildToken(room, identity, caps)
}

func (m *manager) DestroyRoom(ctx context.Context, name string) error {
	members, err := m.Members(ctx, name)
	if err != nil {
		return err
	}
	if len(members) > 0 {
		m.lock.Lock()
		m.doomed[name] = true
		m.lock.Unlock()
		log.Debugf("room occupied, deferring destroy | room: %s, members: %d", name, len(members))
		return ErrRoomOccupied
	}
	return m.delete(ctx, name)
}

func (m *manager) Members(ctx context.Context, name string) ([]string, error) {
	res, err := m.svc.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: name})
	if err != nil {
		return nil, err
	}
	identities := make([]string, 0, len(res.Participants))
	for _, p := range res.Participants {
		identities = append(identities, p.Identity)
	}
	return identities, nil
}

func (m *manager) ClassOf(name string) (Class, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	c, ok := m.classes[name]
	return c, ok
}

func (m *manager) MemberLeft(ctx context.Context, name string) {
	m.lock.Lock()
	doomed := m.doomed[name]
	m.lock.Unlock()
	if !doomed {
		return
	}

	members, err := m.Members(ctx, name)
	if err != nil {
		log.Warnf("cannot check members of doomed room | room: %s, error: %v", name, err)
		return
	}
	if len(members) > 0 {
		return
	}
	if err = m.delete(ctx, name); err != nil {
		log.Warnf("deferred destroy failed | room: %s, error: %v", name, err)
	}
}

func (m *manager) delete(ctx context.Context, name string) error {
	_, err := m.svc.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: name})
	if err != nil {
		return err
	}
	m.lock.Lock()
	delete(m.classes, name)
	delete(m.doomed, name)
	m.lock.Unlock()
	log.Infof("destroyed room | room: %s", name)
	return nil
}
