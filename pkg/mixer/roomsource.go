package mixer

import (
	"strings"

	"github.com/cloudgroundcontrol/callin-studio/pkg/audio"
	"github.com/labstack/gommon/log"
	lksdk "github.com/livekit/server-sdk-go"
	"github.com/pion/opus"
	"github.com/pion/webrtc/v3"
)

// RoomSource subscribes to a conferencing room and feeds its audio into
// the graph as one source. The host mixer attaches one of these for the
// episode's on-air room.
type RoomSource struct {
	input *CaptureInput
	room  *lksdk.Room
}

// NewRoomSource joins the room with the given subscriber token and
// returns a source ready for AttachSource. Detaching the input releases
// the room connection.
func NewRoomSource(url string, token string) (*RoomSource, error) {
	rs := &RoomSource{}

	room, err := lksdk.ConnectToRoomWithToken(url, token)
	if err != nil {
		return nil, err
	}
	room.Callback.OnTrackSubscribed = rs.onTrackSubscribed
	rs.room = room
	rs.input = NewCaptureInput(KindRoom, ReleaserFunc(func() error {
		room.Disconnect()
		return nil
	}))
	return rs, nil
}

func (rs *RoomSource) Input() *CaptureInput {
	return rs.input
}

func (rs *RoomSource) onTrackSubscribed(track *webrtc.TrackRemote, publication *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	mime := track.Codec().MimeType
	switch {
	case strings.EqualFold(mime, webrtc.MimeTypeOpus):
		go rs.readOpusTrack(track)
	case strings.EqualFold(mime, webrtc.MimeTypePCMU):
		go rs.readPhoneTrack(track)
	default:
		log.Debugf("ignoring track | participant: %s, codec: %s", rp.Identity(), mime)
		return
	}
	log.Debugf("room source subscribed | participant: %s, codec: %s", rp.Identity(), mime)
}

func (rs *RoomSource) readOpusTrack(track *webrtc.TrackRemote) {
	decoder := opus.NewDecoder()
	pcmBuf := make([]byte, 4*frameSamples*2)
	samples := make([]int16, 2*frameSamples)
	for {
		packet, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if len(packet.Payload) == 0 {
			continue
		}
		_, isStereo, err := decoder.Decode(packet.Payload, pcmBuf)
		if err != nil {
			continue
		}
		rs.input.Push(audio.BytesToMono(pcmBuf, isStereo, samples))
	}
}

// readPhoneTrack handles bridged phone callers, whose tracks arrive in
// the narrowband codec and need upsampling to the graph rate.
func (rs *RoomSource) readPhoneTrack(track *webrtc.TrackRemote) {
	// Narrowband frames are 20 ms; leave headroom for larger packets
	narrow := make([]int16, 2*sampleRate/audio.Ratio/25)
	wide := make([]int16, len(narrow)*audio.Ratio)
	for {
		packet, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if len(packet.Payload) == 0 {
			continue
		}
		decoded := audio.DecodeMuLawFrame(packet.Payload, narrow)
		rs.input.Push(audio.Upsample8to48(decoded, wide))
	}
}
