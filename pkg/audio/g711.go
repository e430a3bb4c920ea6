package audio

// μ-law companding per ITU-T G.711. The phone network hands us 8-bit
// μ-law samples; everything past the bridge works in linear PCM16.

const muLawBias = 0x84
const muLawClip = 0x7F7B

// DecodeMuLaw expands one μ-law byte to a linear 16-bit sample.
func DecodeMuLaw(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F
	sample := (int16(mantissa)<<3 + muLawBias) << exponent
	sample -= muLawBias
	if sign != 0 {
		return -sample
	}
	return sample
}

// EncodeMuLaw compresses one linear 16-bit sample to μ-law. Magnitude
// is taken in 32 bits so the full-scale negative sample does not wrap.
func EncodeMuLaw(s int16) byte {
	v := int32(s)
	var sign byte
	if v < 0 {
		sign = 0x80
		v = -v
	}
	if v > muLawClip {
		v = muLawClip
	}
	v += muLawBias

	exponent := byte(7)
	for mask := int32(0x4000); exponent > 0 && v&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte(v>>(exponent+3)) & 0x0F
	return ^(sign | exponent<<4 | mantissa)
}

// DecodeMuLawFrame expands a μ-law frame into dst, returning the slice
// of dst that was filled.
func DecodeMuLawFrame(frame []byte, dst []int16) []int16 {
	n := len(frame)
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = DecodeMuLaw(frame[i])
	}
	return dst[:n]
}

// EncodeMuLawFrame compresses PCM16 samples into dst.
func EncodeMuLawFrame(samples []int16, dst []byte) []byte {
	n := len(samples)
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = EncodeMuLaw(samples[i])
	}
	return dst[:n]
}
