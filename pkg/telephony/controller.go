package telephony

import (
	"context"
	"net/http"
	"time"

	"github.com/cloudgroundcontrol/callin-studio/pkg/episode"
	"github.com/cloudgroundcontrol/callin-studio/pkg/lifecycle"
	"github.com/cloudgroundcontrol/callin-studio/pkg/notifier"
	"github.com/cloudgroundcontrol/callin-studio/pkg/room"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// Controller terminates signaling webhooks from the phone network:
// inbound calls, call status changes and conference events.
type Controller struct {
	validator *Validator
	svc       lifecycle.Service
	episodes  episode.Store
	rooms     room.Manager
	notify    notifier.Notifier

	// StreamURL is where the network opens the per-call media channel.
	StreamURL string
}

func NewController(validator *Validator, svc lifecycle.Service, episodes episode.Store, rooms room.Manager, notify notifier.Notifier, streamURL string) *Controller {
	return &Controller{
		validator: validator,
		svc:       svc,
		episodes:  episodes,
		rooms:     rooms,
		notify:    notify,
		StreamURL: streamURL,
	}
}

// Signaling and business-record creation race: the record may lag the
// call by seconds. The admit path polls with a bounded total wait
// before abandoning the call.
const admitDeadline = 5 * time.Second
const admitTick = 250 * time.Millisecond

// Inbound answers a new phone call. The caller is admitted to the live
// episode's queue and the network is told to open the media stream.
func (ct *Controller) Inbound(c echo.Context) error {
	if !ct.validator.Valid(c.Request()) {
		return echo.NewHTTPError(http.StatusForbidden, "bad signature")
	}

	callRef := c.FormValue("CallRef")
	from := c.FormValue("From")
	line := c.FormValue("To")
	if callRef == "" || from == "" || line == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing call fields")
	}

	ep, err := ct.findEpisode(c.Request().Context(), line)
	if err != nil {
		log.Warnf("no live episode for call | line: %s, caller: %s, error: %v", line, from, err)
		return ct.respond(c, hangupWith("No show is live right now. Please call back later."))
	}

	_, err = ct.svc.Admit(c.Request().Context(), lifecycle.AdmitRequest{
		CallerRef: from,
		CallRef:   callRef,
		EpisodeID: ep.ID,
	})
	if err != nil {
		log.Errorf("admit failed | caller: %s, episode: %s, error: %v", from, ep.ID, err)
		return ct.respond(c, hangupWith("We cannot take your call right now."))
	}

	return ct.respond(c, &Instructions{
		Say:     []Say{{Text: "You are in the queue. A screener will be with you shortly."}},
		Connect: &Connect{Stream: Stream{URL: ct.StreamURL}},
	})
}

// Status receives call lifecycle callbacks. A finished phone leg drives
// the participant to completed; duplicates are no-ops downstream.
func (ct *Controller) Status(c echo.Context) error {
	if !ct.validator.Valid(c.Request()) {
		return echo.NewHTTPError(http.StatusForbidden, "bad signature")
	}

	callRef := c.FormValue("CallRef")
	status := c.FormValue("CallStatus")
	if callRef == "" || status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing status fields")
	}

	switch status {
	case "completed", "failed", "busy", "no-answer", "canceled":
		snap, err := ct.svc.FindByCallRef(callRef)
		if err != nil {
			// Already gone; nothing to tear down
			log.Debugf("status for unknown call | callRef: %s, status: %s", callRef, status)
			return c.NoContent(http.StatusOK)
		}
		if err = ct.svc.Complete(c.Request().Context(), snap.ID); err != nil {
			log.Errorf("complete from status failed | participant: %s, error: %v", snap.ID, err)
		}
	}
	return c.NoContent(http.StatusOK)
}

// ConferenceEvents receives membership callbacks from the conferencing
// fabric and republishes them to dashboards. Leave events also unblock
// deferred room destruction.
func (ct *Controller) ConferenceEvents(c echo.Context) error {
	if !ct.validator.Valid(c.Request()) {
		return echo.NewHTTPError(http.StatusForbidden, "bad signature")
	}

	event := c.FormValue("Event")
	roomName := c.FormValue("Room")
	identity := c.FormValue("Identity")
	episodeID := c.FormValue("Episode")
	if event == "" || roomName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing event fields")
	}

	if event == "participant-left" {
		ct.rooms.MemberLeft(c.Request().Context(), roomName)
	}

	ct.notify.Publish(notifier.Event{
		Episode:     episodeID,
		Kind:        notifier.RoomMembershipChanged,
		Participant: identity,
		Room:        roomName,
		State:       event,
	})
	return c.NoContent(http.StatusOK)
}

func (ct *Controller) findEpisode(ctx context.Context, line string) (*episode.Episode, error) {
	deadline := time.After(admitDeadline)
	ticker := time.NewTicker(admitTick)
	defer ticker.Stop()

	ep, err := ct.episodes.FindLive(ctx, line)
	if err == nil {
		return ep, nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, err
		case <-ticker.C:
			ep, err = ct.episodes.FindLive(ctx, line)
			if err == nil {
				return ep, nil
			}
		}
	}
}

func (ct *Controller) respond(c echo.Context, in *Instructions) error {
	body, err := in.XML()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationXMLCharsetUTF8, body)
}
