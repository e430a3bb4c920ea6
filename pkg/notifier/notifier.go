package notifier

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
)

// EventKind tags what changed. Screening dashboards key off these.
type EventKind string

const (
	ParticipantStateChanged EventKind = "participant.state_changed"
	RoomMembershipChanged   EventKind = "room.membership_changed"
	RecordingFinished       EventKind = "recording.finished"
)

// Event is published per episode to subscribed dashboards. Delivery is
// fire-and-forget: transitions never wait on it.
type Event struct {
	Episode     string    `json:"episode"`
	Kind        EventKind `json:"kind"`
	Participant string    `json:"participant,omitempty"`
	Room        string    `json:"room,omitempty"`
	State       string    `json:"state,omitempty"`
	At          time.Time `json:"at"`
}

type Notifier interface {
	Publish(ev Event)
	Close()
}

type notifier struct {
	webhooks []string
	client   http.Client
	queue    chan Event
	quit     chan struct{}
	done     chan struct{}
	closer   sync.Once
}

const queueDepth = 64

func New(webhooks []string) Notifier {
	n := &notifier{
		webhooks: webhooks,
		client:   http.Client{Timeout: 5 * time.Second},
		queue:    make(chan Event, queueDepth),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go n.run()
	return n
}

// Publish enqueues without blocking. A full queue sheds the event, not
// the transition that produced it; publishes racing a shutdown are
// dropped, never a panic.
func (n *notifier) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case <-n.quit:
		return
	default:
	}
	select {
	case n.queue <- ev:
	default:
		log.Warnf("notifier queue full, dropping event | kind: %s, episode: %s", ev.Kind, ev.Episode)
	}
}

// Close drains queued events and stops the delivery loop. Idempotent.
func (n *notifier) Close() {
	n.closer.Do(func() { close(n.quit) })
	<-n.done
}

func (n *notifier) run() {
	defer close(n.done)
	for {
		select {
		case ev := <-n.queue:
			n.send(ev)
		case <-n.quit:
			for {
				select {
				case ev := <-n.queue:
					n.send(ev)
				default:
					return
				}
			}
		}
	}
}

func (n *notifier) send(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		log.Errorf("error marshalling event | error: %v, kind: %s", err, ev.Kind)
		return
	}
	for _, hook := range n.webhooks {
		_, err = n.client.Post(hook, "application/json", bytes.NewBuffer(body))
		if err != nil {
			log.Errorf("error reaching webhook | error: %v, url: %s", err, hook)
			continue
		}
		log.Debugf("sent event | url: %s, kind: %s, participant: %s", hook, ev.Kind, ev.Participant)
	}
}
