package audio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMuLawRoundTrip(t *testing.T) {
	// Companding is lossy; the error bound shrinks with amplitude, so a
	// generous bound across the full range is the right check
	for _, s := range []int16{0, 1, -1, 100, -100, 1000, -1000, 8000, -8000, 30000, -30000} {
		decoded := DecodeMuLaw(EncodeMuLaw(s))
		diff := int32(decoded) - int32(s)
		if diff < 0 {
			diff = -diff
		}
		require.LessOrEqual(t, diff, int32(1000), "sample %d decoded to %d", s, decoded)
	}
}

func TestMuLawSilence(t *testing.T) {
	// 0xFF is the canonical μ-law silence byte
	require.Equal(t, byte(0xFF), EncodeMuLaw(0))
	require.EqualValues(t, 0, DecodeMuLaw(0xFF))
}

func TestMuLawAllBytesDecodeEncode(t *testing.T) {
	// Every μ-law byte must survive a decode/encode cycle exactly; the
	// codec tables are each other's inverse on the byte side
	for b := 0; b < 256; b++ {
		in := byte(b)
		out := EncodeMuLaw(DecodeMuLaw(in))
		// 0x7F and 0xFF both decode to zero, which encodes to 0xFF
		if in == 0x7F {
			require.Equal(t, byte(0xFF), out)
			continue
		}
		require.Equal(t, in, out, "byte %#x", in)
	}
}

func TestMuLawFullScaleNegative(t *testing.T) {
	// -32768 has no int16 positive counterpart; it must clip to the
	// loudest negative code, not wrap around to silence
	b := EncodeMuLaw(-32768)
	require.Equal(t, EncodeMuLaw(-32767), b)
	require.EqualValues(t, -32124, DecodeMuLaw(b))
}

func TestMuLawFrames(t *testing.T) {
	samples := []int16{0, 500, -500, 10000, -10000}
	encoded := EncodeMuLawFrame(samples, make([]byte, len(samples)))
	require.Len(t, encoded, len(samples))

	decoded := DecodeMuLawFrame(encoded, make([]int16, len(samples)))
	require.Len(t, decoded, len(samples))

	// Truncated destination bounds the output
	short := DecodeMuLawFrame(encoded, make([]int16, 2))
	require.Len(t, short, 2)
}
