package audio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpsampleLength(t *testing.T) {
	in := []int16{100, 200, 300}
	out := Upsample8to48(in, make([]int16, len(in)*Ratio))
	require.Len(t, out, len(in)*Ratio)

	// First sample of each group is the source sample
	require.EqualValues(t, 100, out[0])
	require.EqualValues(t, 200, out[Ratio])
	require.EqualValues(t, 300, out[2*Ratio])

	// Interpolated values stay between neighbours
	for i := 0; i < Ratio; i++ {
		require.GreaterOrEqual(t, out[i], int16(100))
		require.LessOrEqual(t, out[i], int16(200))
	}
}

func TestUpsampleEmpty(t *testing.T) {
	out := Upsample8to48(nil, make([]int16, 0))
	require.Empty(t, out)
}

func TestDownsampleAverages(t *testing.T) {
	in := make([]int16, 2*Ratio)
	for i := 0; i < Ratio; i++ {
		in[i] = 600
		in[Ratio+i] = -600
	}
	out := Downsample48to8(in, make([]int16, 2))
	require.Len(t, out, 2)
	require.EqualValues(t, 600, out[0])
	require.EqualValues(t, -600, out[1])
}

func TestResampleRoundTripDC(t *testing.T) {
	// A constant signal survives the round trip exactly
	in := []int16{1234, 1234, 1234, 1234}
	wide := Upsample8to48(in, make([]int16, len(in)*Ratio))
	back := Downsample48to8(wide, make([]int16, len(in)))
	require.Equal(t, in, back)
}
