package bridge

// Wire format of the media frame channel: one persistent websocket per
// active call carrying framed control messages. Media payloads are
// base64 μ-law at a fixed 20 ms cadence.

const (
	EventStart = "start"
	EventMedia = "media"
	EventStop  = "stop"
)

// FrameSamples is the narrowband frame size: 20 ms at 8 kHz.
const FrameSamples = 160

// FrameInterval is the phone codec's cadence in milliseconds.
const FrameIntervalMs = 20

type Message struct {
	Event string        `json:"event"`
	Start *StartPayload `json:"start,omitempty"`
	Media *MediaPayload `json:"media,omitempty"`
}

// StartPayload opens the stream and names the call it belongs to.
type StartPayload struct {
	CallRef string `json:"callRef"`
}

// MediaPayload carries one encoded narrowband frame.
type MediaPayload struct {
	Payload string `json:"payload"`
}

// silenceFrame is 20 ms of μ-law silence, substituted whenever a real
// frame is missing.
var silenceFrame = func() []byte {
	f := make([]byte, FrameSamples)
	for i := range f {
		f[i] = 0xFF
	}
	return f
}()
