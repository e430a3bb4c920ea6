package bridge

import (
	"testing"

	"github.com/cloudgroundcontrol/callin-studio/pkg/audio"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/require"
)

func newTestLeg() *lkRoomLeg {
	return &lkRoomLeg{
		identity: "TB_PA_1",
		rings:    make(map[string]*audio.Ring),
		scratch:  make([]int16, FrameSamples*audio.Ratio),
	}
}

func TestPhoneCodecDispatch(t *testing.T) {
	require.True(t, isPhoneCodec(webrtc.MimeTypePCMU))
	require.True(t, isPhoneCodec("audio/pcmu"))
	require.False(t, isPhoneCodec(webrtc.MimeTypeOpus))
}

func TestReadMixSumsSubscribedRings(t *testing.T) {
	leg := newTestLeg()
	a := leg.addRing("TR_a")
	b := leg.addRing("TR_b")

	samples := make([]int16, FrameSamples*audio.Ratio)
	for i := range samples {
		samples[i] = 100
	}
	a.Write(samples)
	b.Write(samples)

	dst := make([]int16, FrameSamples*audio.Ratio)
	require.Equal(t, len(dst), leg.ReadMix(dst))
	require.EqualValues(t, 200, dst[0])
}

func TestPhoneTrackAudioReachesMix(t *testing.T) {
	// A bridged caller in the same room publishes narrowband, not Opus;
	// their audio still has to come back in everyone else's mix
	leg := newTestLeg()
	ring := leg.addRing("TR_phone")

	payload := make([]byte, FrameSamples)
	for i := range payload {
		payload[i] = audio.EncodeMuLaw(4000)
	}
	narrow := make([]int16, FrameSamples)
	wide := make([]int16, FrameSamples*audio.Ratio)
	ring.Write(audio.Upsample8to48(audio.DecodeMuLawFrame(payload, narrow), wide))

	dst := make([]int16, FrameSamples*audio.Ratio)
	require.Equal(t, len(dst), leg.ReadMix(dst))
	require.NotZero(t, dst[0])
}

func TestUnsubscribedTrackLeavesMix(t *testing.T) {
	leg := newTestLeg()
	ring := leg.addRing("TR_a")
	samples := make([]int16, FrameSamples*audio.Ratio)
	for i := range samples {
		samples[i] = 500
	}
	ring.Write(samples)

	leg.removeRing("TR_a")
	dst := make([]int16, FrameSamples*audio.Ratio)
	require.Zero(t, leg.ReadMix(dst))
}
