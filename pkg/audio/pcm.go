package audio

// BytesToMono converts little-endian PCM16 bytes to mono samples,
// averaging channels when the source is stereo. Returns the filled
// slice of out.
func BytesToMono(pcm []byte, stereo bool, out []int16) []int16 {
	count := len(pcm) / 2
	if stereo {
		count /= 2
	}
	if count > len(out) {
		count = len(out)
	}
	for i := 0; i < count; i++ {
		if stereo {
			l := int16(pcm[4*i]) | int16(pcm[4*i+1])<<8
			r := int16(pcm[4*i+2]) | int16(pcm[4*i+3])<<8
			out[i] = int16((int32(l) + int32(r)) / 2)
		} else {
			out[i] = int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
		}
	}
	return out[:count]
}
