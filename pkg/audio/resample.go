package audio

// Rate conversion between the 8 kHz telephony leg and the 48 kHz
// conferencing fabric. The ratio is an integer, so upsampling is linear
// interpolation and downsampling is a 6-tap average. Neither allocates.

const Ratio = 6

// Upsample8to48 interpolates narrowband samples into dst, which must
// hold len(in)*Ratio samples. Returns the filled slice.
func Upsample8to48(in []int16, dst []int16) []int16 {
	n := len(in)
	if n == 0 {
		return dst[:0]
	}
	for i := 0; i < n; i++ {
		cur := int32(in[i])
		next := cur
		if i+1 < n {
			next = int32(in[i+1])
		}
		for j := 0; j < Ratio; j++ {
			dst[i*Ratio+j] = int16(cur + (next-cur)*int32(j)/Ratio)
		}
	}
	return dst[:n*Ratio]
}

// Downsample48to8 averages each Ratio-sample group of in into dst, which
// must hold len(in)/Ratio samples. Returns the filled slice.
func Downsample48to8(in []int16, dst []int16) []int16 {
	n := len(in) / Ratio
	for i := 0; i < n; i++ {
		var sum int32
		for j := 0; j < Ratio; j++ {
			sum += int32(in[i*Ratio+j])
		}
		dst[i] = int16(sum / Ratio)
	}
	return dst[:n]
}
