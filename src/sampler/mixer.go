package sampler

// ----- Mixer ----- //

// mix accumulates every live voice into out and hard-clips the result.
// out holds interleaved frames, len(out)/channelNum frames per block.
// Mixing is commutative, but slot order keeps the pass deterministic.
func (p *voicePool) mix(out []float64, masterVolume float64) {
	for i := range out {
		out[i] = 0
	}
	for _, v := range p.live {
		v.mixInto(out, masterVolume)
	}
	for i, value := range out {
		if value > 1.0 {
			out[i] = 1.0
		} else if value < -1.0 {
			out[i] = -1.0
		}
	}
}

// mixInto adds up to one block of this voice to out and advances the
// playback cursor. A voice that runs out of samples mid-block fills
// only its first n frames; the rest of its contribution is zero.
func (v *voice) mixInto(out []float64, masterVolume float64) {
	frames := len(out) / channelNum
	available := v.sample.Frames() - v.position
	n := frames
	if n > available {
		n = available
	}
	gain := float64(v.velocity) / 127.0 * masterVolume
	for i := 0; i < n; i++ {
		g := gain
		if v.state == stateReleasing {
			g *= v.releaseGain(i)
		}
		src := (v.position + i) * channelNum
		dst := i * channelNum
		for c := 0; c < channelNum; c++ {
			out[dst+c] += v.sample.data[src+c] * g
		}
	}
	v.position += n
	if v.state == stateReleasing {
		v.releaseElapsed += n
		if v.releaseElapsed > v.releaseTotal {
			v.releaseElapsed = v.releaseTotal
		}
	}
}

// releaseGain is the linear fade at offset frames past the current
// envelope position: 1 at the moment of release, 0 at releaseTotal.
func (v *voice) releaseGain(offset int) float64 {
	pos := v.releaseElapsed + offset
	if pos >= v.releaseTotal {
		return 0
	}
	return 1.0 - float64(pos)/float64(v.releaseTotal)
}
