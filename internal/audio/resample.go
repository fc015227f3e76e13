package audio

// Resampler converts a PCM16 stream from one sample rate to another using
// linear interpolation. It keeps unconsumed input across calls so it can be
// fed arbitrary chunk sizes.
type Resampler struct {
	buf  []int16
	pos  float64
	step float64
}

// NewResampler creates a resampler from srcRate to dstRate.
func NewResampler(srcRate, dstRate int) *Resampler {
	return &Resampler{step: float64(srcRate) / float64(dstRate)}
}

// Push adds input samples and returns whatever output is ready. The returned
// slice is owned by the caller.
func (r *Resampler) Push(in []int16) []int16 {
	r.buf = append(r.buf, in...)
	if len(r.buf) < 2 {
		return nil
	}

	var out []int16
	for {
		i := int(r.pos)
		if i+1 >= len(r.buf) {
			break
		}
		frac := r.pos - float64(i)
		s0 := float64(r.buf[i])
		s1 := float64(r.buf[i+1])
		v := s0 + (s1-s0)*frac
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out = append(out, int16(v))
		r.pos += r.step
	}

	// Drop fully consumed input but keep one sample of lookahead.
	drop := int(r.pos)
	if drop > 0 {
		if drop >= len(r.buf) {
			r.buf = r.buf[:0]
			r.pos = 0
		} else {
			r.buf = r.buf[drop:]
			r.pos -= float64(drop)
		}
	}
	return out
}
