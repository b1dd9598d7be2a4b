package sampler

import (
	"bytes"
	"testing"
)

func newTestEngine(bank *SampleBank) *Engine {
	e := newEngine("")
	e.bank = bank
	return e
}

func testBank(id int, frames int, notes ...int) *SampleBank {
	buffers := make(map[int]*SampleBuffer)
	for _, note := range notes {
		buffers[note] = constBuffer(frames, 0.5)
	}
	return &SampleBank{id: id, buffers: buffers}
}

func silent(buf []byte) bool {
	return bytes.Count(buf, []byte{0}) == len(buf)
}

func TestNoteOnProducesAudioUntilBufferExhausted(t *testing.T) {
	e := newTestEngine(testBank(0, 2*samplesPerCycle+512, 60))
	defer e.Close()
	e.NoteOn(60, 127)
	buf := make([]byte, bufferSizeInBytes)
	for block := 0; block < 3; block++ {
		if n := e.renderBlock(buf); n != len(buf) {
			t.Fatalf("short block: %d", n)
		}
		if silent(buf) {
			t.Fatalf("block %d should not be silent", block)
		}
	}
	if e.ActiveVoices() != 0 {
		t.Fatalf("voice should be gone after its buffer ran out")
	}
	e.renderBlock(buf)
	if !silent(buf) {
		t.Errorf("blocks after exhaustion must be silent")
	}
}

func TestNoteOnForUnmappedNoteIsNoop(t *testing.T) {
	e := newTestEngine(testBank(0, sampleRate, 60))
	defer e.Close()
	e.NoteOn(61, 127)
	buf := make([]byte, bufferSizeInBytes)
	e.renderBlock(buf)
	if e.ActiveVoices() != 0 {
		t.Errorf("missing sample must not allocate a voice")
	}
	if !silent(buf) {
		t.Errorf("missing sample must not produce audio")
	}
}

func TestNoteOnVelocityZeroActsAsNoteOff(t *testing.T) {
	render := func(off func(e *Engine)) []byte {
		e := newTestEngine(testBank(0, 10*sampleRate, 60))
		defer e.Close()
		e.NoteOn(60, 127)
		buf := make([]byte, bufferSizeInBytes)
		e.renderBlock(buf)
		off(e)
		e.renderBlock(buf)
		out := make([]byte, len(buf))
		copy(out, buf)
		return out
	}
	viaNoteOff := render(func(e *Engine) { e.NoteOff(60) })
	viaZeroVelocity := render(func(e *Engine) { e.NoteOn(60, 0) })
	if !bytes.Equal(viaNoteOff, viaZeroVelocity) {
		t.Errorf("note_on with velocity 0 must behave exactly like note_off")
	}
}

func TestSetVolumeClampsRange(t *testing.T) {
	e := newTestEngine(nil)
	defer e.Close()
	e.SetVolume(-5)
	if e.Volume() != 0 {
		t.Errorf("SetVolume(-5): volume = %v, want 0", e.Volume())
	}
	e.SetVolume(99)
	if e.Volume() != 1 {
		t.Errorf("SetVolume(99): volume = %v, want 1", e.Volume())
	}
	e.SetVolume(0.3)
	if e.Volume() != 0.3 {
		t.Errorf("SetVolume(0.3): volume = %v", e.Volume())
	}
}

func TestVolumeTakesEffectOnNextBlock(t *testing.T) {
	e := newTestEngine(testBank(0, 10*sampleRate, 60))
	defer e.Close()
	e.SetVolume(0)
	e.NoteOn(60, 127)
	buf := make([]byte, bufferSizeInBytes)
	e.renderBlock(buf)
	if !silent(buf) {
		t.Errorf("volume 0 set before the block must silence it")
	}
	if e.ActiveVoices() != 1 {
		t.Errorf("the voice itself must still be live")
	}
}

func TestCommandsAreNeverLostBeforeABlock(t *testing.T) {
	e := newTestEngine(testBank(0, 10*sampleRate, 60, 62, 64))
	defer e.Close()
	e.NoteOn(60, 127)
	e.NoteOn(62, 127)
	e.NoteOn(64, 127)
	buf := make([]byte, bufferSizeInBytes)
	e.renderBlock(buf)
	if e.ActiveVoices() != 3 {
		t.Errorf("all note-ons issued before the block must be visible in it, got %d voices", e.ActiveVoices())
	}
}

func TestUpdateDispatchesCommands(t *testing.T) {
	e := newTestEngine(testBank(0, 10*sampleRate, 60))
	defer e.Close()
	if err := e.update([]string{"volume", "0.25"}); err != nil {
		t.Fatalf("volume command failed: %v", err)
	}
	if e.Volume() != 0.25 {
		t.Errorf("volume = %v, want 0.25", e.Volume())
	}
	if err := e.update([]string{"note_on", "60", "127"}); err != nil {
		t.Fatalf("note_on command failed: %v", err)
	}
	buf := make([]byte, bufferSizeInBytes)
	e.renderBlock(buf)
	if e.ActiveVoices() != 1 {
		t.Errorf("note_on command did not reach the pool")
	}
	if err := e.update([]string{"warp", "9"}); err == nil {
		t.Errorf("unknown command must be rejected")
	}
	if err := e.update([]string{"note_on", "60"}); err == nil {
		t.Errorf("malformed note_on must be rejected")
	}
}

func TestHandleMidiMessage(t *testing.T) {
	e := newTestEngine(testBank(0, 10*sampleRate, 60))
	defer e.Close()
	buf := make([]byte, bufferSizeInBytes)

	e.HandleMidiMessage([]byte{0x90, 60, 100})
	e.renderBlock(buf)
	if e.ActiveVoices() != 1 {
		t.Fatalf("note-on message ignored")
	}

	e.HandleMidiMessage([]byte{0x80, 60, 0})
	e.renderBlock(buf)
	if e.pool.live[0].state != stateReleasing {
		t.Errorf("note-off message did not release the voice")
	}

	e.HandleMidiMessage([]byte{0xB0, 7, 0})
	if e.Volume() != 0 {
		t.Errorf("CC7 did not set the volume")
	}

	e.HandleMidiMessage([]byte{0x90}) // truncated, must not panic
}

func TestRenderFaultEmitsSilentBlock(t *testing.T) {
	e := newTestEngine(testBank(0, 10*sampleRate, 60))
	defer e.Close()
	e.NoteOn(60, 127)
	buf := make([]byte, bufferSizeInBytes)
	e.renderBlock(buf)
	if silent(buf) {
		t.Fatalf("voice should be audible before the fault")
	}

	// a corrupted voice must never take down the stream: the block
	// degrades to silence, full size, no panic escaping
	e.pool.live[0].sample = nil
	for block := 0; block < 2; block++ {
		if n := e.renderBlock(buf); n != len(buf) {
			t.Fatalf("faulted block %d returned %d bytes, want %d", block, n, len(buf))
		}
		if !silent(buf) {
			t.Fatalf("faulted block %d must degrade to silence", block)
		}
	}

	// once the bad voice is cleared the engine keeps serving
	e.pool.killAll()
	e.NoteOn(60, 127)
	e.renderBlock(buf)
	if silent(buf) {
		t.Errorf("engine should produce audio again after the faulty voice is gone")
	}
}

func TestRenderHandlesOversizedRequests(t *testing.T) {
	e := newTestEngine(testBank(0, 10*sampleRate, 60))
	defer e.Close()
	buf := make([]byte, 3*bufferSizeInBytes)
	n := e.renderBlock(buf)
	if n != bufferSizeInBytes {
		t.Errorf("renderBlock returned %d bytes, want one block (%d)", n, bufferSizeInBytes)
	}
}
