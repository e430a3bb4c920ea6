package telephony

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstructionsXML(t *testing.T) {
	in := &Instructions{
		Say:     []Say{{Text: "You are in the queue."}},
		Connect: &Connect{Stream: Stream{URL: "wss://studio.example.com/calls/media"}},
	}
	body, err := in.XML()
	require.NoError(t, err)

	out := string(body)
	require.Contains(t, out, "<?xml")
	require.Contains(t, out, "<Response>")
	require.Contains(t, out, "<Say>You are in the queue.</Say>")
	require.Contains(t, out, `<Stream url="wss://studio.example.com/calls/media">`)
	require.NotContains(t, out, "<Hangup>")
}

func TestHangupWith(t *testing.T) {
	body, err := hangupWith("No show is live.").XML()
	require.NoError(t, err)

	out := string(body)
	require.Contains(t, out, "<Say>No show is live.</Say>")
	require.Contains(t, out, "<Hangup>")
	require.NotContains(t, out, "<Connect>")
}
