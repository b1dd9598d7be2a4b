package sampler

import (
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
)

// ----- Control API ----- //

// The control context calls these from buttons, MIDI or the command
// socket. They validate, then hand the work to the render context
// through the event queue, so the effect lands on the next block at the
// latest and the render side never waits on a caller.

// NoteOn triggers a new voice. Velocity 0 is a note-off, per the usual
// MIDI convention.
func (e *Engine) NoteOn(note int, velocity int) {
	if velocity <= 0 {
		e.NoteOff(note)
		return
	}
	if velocity > 127 {
		velocity = 127
	}
	e.events <- &noteOn{note: note, velocity: velocity}
}

// NoteOff releases every sustaining voice for note.
func (e *Engine) NoteOff(note int) {
	e.events <- &noteOff{note: note}
}

// SetVolume clamps v into [0,1] and applies it from the next block on.
func (e *Engine) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	atomic.StoreUint64(&e.volumeBits, math.Float64bits(v))
	e.events <- &setVolume{value: v}
}

// LoadPreset builds the bank for id and swaps it in. All voices of the
// old bank are killed by the swap. An unknown id is refused and the
// current bank stays active.
func (e *Engine) LoadPreset(id int) error {
	bank, err := LoadBank(e.sampleDir, id)
	if err != nil {
		return err
	}
	e.events <- &swapBank{bank: bank}
	atomic.StoreInt32(&e.presetID, int32(id))
	return nil
}

// ----- UI Snapshot ----- //

// Best-effort reads for display. The mirrors are written when a change
// is accepted, not when the render context applies it, so a read can
// lead the audio by the depth of the event queue (and trail the last
// rendered block by at most one block). The display only needs rough
// freshness, so the simpler discipline is deliberate.

// ActiveVoices ...
func (e *Engine) ActiveVoices() int {
	return int(atomic.LoadInt32(&e.activeCount))
}

// Volume ...
func (e *Engine) Volume() float64 {
	return math.Float64frombits(atomic.LoadUint64(&e.volumeBits))
}

// PresetID ...
func (e *Engine) PresetID() int {
	return int(atomic.LoadInt32(&e.presetID))
}

// ----- Text Commands ----- //

// update dispatches one command line from the control socket.
func (e *Engine) update(command []string) error {
	switch command[0] {
	case "note_on":
		if len(command) != 3 {
			return fmt.Errorf("usage: note_on <note> <velocity>")
		}
		note, err := strconv.Atoi(command[1])
		if err != nil {
			return err
		}
		velocity, err := strconv.Atoi(command[2])
		if err != nil {
			return err
		}
		e.NoteOn(note, velocity)
	case "note_off":
		if len(command) != 2 {
			return fmt.Errorf("usage: note_off <note>")
		}
		note, err := strconv.Atoi(command[1])
		if err != nil {
			return err
		}
		e.NoteOff(note)
	case "volume":
		if len(command) != 2 {
			return fmt.Errorf("usage: volume <0..1>")
		}
		value, err := strconv.ParseFloat(command[1], 64)
		if err != nil {
			return err
		}
		e.SetVolume(value)
	case "preset":
		if len(command) != 2 {
			return fmt.Errorf("usage: preset <id>")
		}
		id, err := strconv.Atoi(command[1])
		if err != nil {
			return err
		}
		return e.LoadPreset(id)
	default:
		return fmt.Errorf("unknown command %v", command[0])
	}
	return nil
}
