package mixer

// levelOf estimates a display level in [0,100] from the latest frame
// window. Peak-based; readings are for meters only and never feed back
// into gain decisions.
func levelOf(frame []int16) int {
	var peak int32
	for _, s := range frame {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	level := int(peak * 100 / 32767)
	if level > 100 {
		level = 100
	}
	return level
}
