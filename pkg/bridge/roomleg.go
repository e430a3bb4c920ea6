package bridge

import (
	"strings"
	"sync"
	"time"

	"github.com/cloudgroundcontrol/callin-studio/pkg/audio"
	"github.com/labstack/gommon/log"
	lksdk "github.com/livekit/server-sdk-go"
	"github.com/pion/opus"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

// roomLeg is the conferencing side of a bridge session: it publishes the
// caller's narrowband track into the room and exposes the room's mix
// back, excluding the caller's own contribution.
type roomLeg interface {
	PublishFrame(ulaw []byte) error
	// ReadMix sums the room's remote audio into dst at the fabric rate.
	// Returns the number of samples written; 0 means silence.
	ReadMix(dst []int16) int
	Close()
}

// roomConnector lets tests swap the fabric out.
type roomConnector func(url string, token string, identity string, onLost func()) (roomLeg, error)

type lkRoomLeg struct {
	identity string
	room     *lksdk.Room
	track    *webrtc.TrackLocalStaticSample

	lock    sync.RWMutex
	rings   map[string]*audio.Ring // keyed by track SID
	scratch []int16
}

const legRingSamples = 48000 / 2

func connectRoomLeg(url string, token string, identity string, onLost func()) (roomLeg, error) {
	leg := &lkRoomLeg{
		identity: identity,
		rings:    make(map[string]*audio.Ring),
		scratch:  make([]int16, FrameSamples*audio.Ratio),
	}

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypePCMU,
		ClockRate: 8000,
		Channels:  1,
	}, "phone-audio", identity)
	if err != nil {
		return nil, err
	}
	leg.track = track

	room, err := lksdk.ConnectToRoomWithToken(url, token)
	if err != nil {
		return nil, err
	}
	room.Callback.OnTrackSubscribed = leg.onTrackSubscribed
	room.Callback.OnTrackUnsubscribed = leg.onTrackUnsubscribed
	room.Callback.OnDisconnected = onLost
	leg.room = room

	if _, err = room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{Name: "phone-audio"}); err != nil {
		room.Disconnect()
		return nil, err
	}
	return leg, nil
}

func (l *lkRoomLeg) PublishFrame(ulaw []byte) error {
	return l.track.WriteSample(media.Sample{
		Data:     ulaw,
		Duration: FrameIntervalMs * time.Millisecond,
	})
}

func (l *lkRoomLeg) onTrackSubscribed(track *webrtc.TrackRemote, publication *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	// Mix-minus: never fold the caller's own contribution back into the
	// feed they hear, or the phone side echoes.
	if rp.Identity() == l.identity {
		return
	}
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}

	ring := l.addRing(publication.SID())
	log.Debugf("bridge subscribed | identity: %s, from: %s, codec: %s", l.identity, rp.Identity(), track.Codec().MimeType)

	if isPhoneCodec(track.Codec().MimeType) {
		go l.readPhoneTrack(track, ring)
		return
	}
	go l.readOpusTrack(track, ring)
}

func (l *lkRoomLeg) onTrackUnsubscribed(track *webrtc.TrackRemote, publication *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	l.removeRing(publication.SID())
}

func (l *lkRoomLeg) addRing(sid string) *audio.Ring {
	ring := audio.NewRing(legRingSamples)
	l.lock.Lock()
	l.rings[sid] = ring
	l.lock.Unlock()
	return ring
}

func (l *lkRoomLeg) removeRing(sid string) {
	l.lock.Lock()
	delete(l.rings, sid)
	l.lock.Unlock()
}

// isPhoneCodec picks out narrowband tracks published by other bridge
// sessions in the same room; everything else arrives as Opus.
func isPhoneCodec(mime string) bool {
	return strings.EqualFold(mime, webrtc.MimeTypePCMU)
}

func (l *lkRoomLeg) readOpusTrack(track *webrtc.TrackRemote, ring *audio.Ring) {
	decoder := opus.NewDecoder()
	pcmBuf := make([]byte, 8*FrameSamples*audio.Ratio)
	samples := make([]int16, 2*FrameSamples*audio.Ratio)
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
		ring.Write(audio.BytesToMono(pcmBuf, isStereo, samples))
	}
}

// readPhoneTrack feeds another bridged caller into the mix: μ-law
// payloads expanded and upsampled to the fabric rate.
func (l *lkRoomLeg) readPhoneTrack(track *webrtc.TrackRemote, ring *audio.Ring) {
	narrow := make([]int16, 2*FrameSamples)
	wide := make([]int16, 2*FrameSamples*audio.Ratio)
	for {
		packet, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if len(packet.Payload) == 0 {
			continue
		}
		decoded := audio.DecodeMuLawFrame(packet.Payload, narrow)
		ring.Write(audio.Upsample8to48(decoded, wide))
	}
}

func (l *lkRoomLeg) ReadMix(dst []int16) int {
	for i := range dst {
		dst[i] = 0
	}
	l.lock.RLock()
	defer l.lock.RUnlock()

	written := 0
	for _, ring := range l.rings {
		got := ring.Read(l.scratch[:len(dst)])
		if got > written {
			written = got
		}
		for i := 0; i < got; i++ {
			sum := int32(dst[i]) + int32(l.scratch[i])
			if sum > 32767 {
				sum = 32767
			} else if sum < -32768 {
				sum = -32768
			}
			dst[i] = int16(sum)
		}
	}
	return written
}

func (l *lkRoomLeg) Close() {
	l.room.Disconnect()
}
