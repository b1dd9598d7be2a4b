package sampler

// ----- Voice ----- //

const (
	stateSustain = iota
	stateReleasing
)

// voice is one in-flight playback of a bank sample. The sample is
// shared and read-only; everything else is owned by the pool.
type voice struct {
	sample         *SampleBuffer
	position       int // frame index, 0 <= position <= sample.Frames()
	note           int
	velocity       int // 1-127, fixed for the voice's lifetime
	state          int
	releaseTotal   int // frames, set on release
	releaseElapsed int
	seq            uint64 // allocation order, for stealing
}

func (v *voice) dead() bool {
	if v.position >= v.sample.Frames() {
		return true
	}
	return v.state == stateReleasing && v.releaseElapsed >= v.releaseTotal
}

// ----- Voice Pool ----- //

type voicePool struct {
	// free + live = capacity
	free []*voice
	live []*voice
	seq  uint64
}

func newVoicePool(capacity int) *voicePool {
	free := make([]*voice, capacity)
	for i := 0; i < len(free); i++ {
		free[i] = &voice{}
	}
	return &voicePool{
		free: free,
		live: make([]*voice, 0, capacity),
	}
}

// allocate starts a new voice for note. At capacity it steals the
// oldest releasing voice, or the oldest voice overall if none is
// releasing, so a flurry of triggers never silently drops the newest
// note and per-block work stays bounded.
func (p *voicePool) allocate(sample *SampleBuffer, note int, velocity int) {
	var v *voice
	if n := len(p.free); n > 0 {
		v = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		v = p.steal()
	}
	if v == nil {
		return
	}
	p.seq++
	v.sample = sample
	v.position = 0
	v.note = note
	v.velocity = velocity
	v.state = stateSustain
	v.releaseTotal = 0
	v.releaseElapsed = 0
	v.seq = p.seq
	p.live = append(p.live, v)
}

func (p *voicePool) steal() *voice {
	oldest := -1
	for i, v := range p.live {
		if v.state != stateReleasing {
			continue
		}
		if oldest < 0 || v.seq < p.live[oldest].seq {
			oldest = i
		}
	}
	if oldest < 0 {
		for i, v := range p.live {
			if oldest < 0 || v.seq < p.live[oldest].seq {
				oldest = i
			}
		}
	}
	if oldest < 0 {
		return nil
	}
	v := p.live[oldest]
	p.live = append(p.live[:oldest], p.live[oldest+1:]...)
	return v
}

// release moves every sustaining voice for note into its release
// envelope. Voices already releasing keep their envelope position.
func (p *voicePool) release(note int) {
	for _, v := range p.live {
		if v.note != note || v.state != stateSustain {
			continue
		}
		v.state = stateReleasing
		v.releaseTotal = releaseFrames
		v.releaseElapsed = 0
	}
}

// reclaim returns every dead voice to the free list. Runs on the render
// context after mixing, so a dead voice never survives into the next
// block.
func (p *voicePool) reclaim() {
	for j := len(p.live) - 1; j >= 0; j-- {
		v := p.live[j]
		if v.dead() {
			p.live = append(p.live[:j], p.live[j+1:]...)
			v.sample = nil
			p.free = append(p.free, v)
		}
	}
}

func (p *voicePool) killAll() {
	for j := len(p.live) - 1; j >= 0; j-- {
		v := p.live[j]
		v.sample = nil
		p.free = append(p.free, v)
	}
	p.live = p.live[:0]
}
