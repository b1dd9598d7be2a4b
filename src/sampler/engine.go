package sampler

import (
	"context"
	"io"
	"log"
	"math"
	"sync/atomic"

	"github.com/hajimehoshi/oto"
)

const (
	sampleRate      = 44100
	channelNum      = 2
	bitDepthInBytes = 2
	samplesPerCycle = 1024
	maxPolyphony    = 64
)
const bytesPerSample = bitDepthInBytes * channelNum
const bufferSizeInBytes = samplesPerCycle * bytesPerSample // should be >= 4096
const releaseSeconds = 0.1
const releaseFrames = int(releaseSeconds * sampleRate)
const defaultVolume = 0.8

// ----- Events ----- //

// Events travel one way, control context -> render context, through
// Engine.events. The render context owns pool, bank and volume; nothing
// else touches them.

type noteOn struct {
	note     int
	velocity int
}
type noteOff struct {
	note int
}
type setVolume struct {
	value float64
}
type swapBank struct {
	bank *SampleBank
}

// ----- Engine ----- //

// Engine ...
type Engine struct {
	ctx        context.Context
	otoContext *oto.Context
	CommandCh  chan []string
	events     chan interface{}

	// owned by the render context
	pool   *voicePool
	bank   *SampleBank
	volume float64
	out    []float64 // length: samplesPerCycle * channelNum

	// mirrors for the UI snapshot, see control.go
	volumeBits  uint64
	activeCount int32
	presetID    int32

	sampleDir string
}

var _ io.Reader = (*Engine)(nil)

// NewEngine ...
func NewEngine(sampleDir string) (*Engine, error) {
	otoContext, err := oto.NewContext(sampleRate, channelNum, bitDepthInBytes, bufferSizeInBytes)
	if err != nil {
		return nil, err
	}
	e := newEngine(sampleDir)
	e.otoContext = otoContext
	return e, nil
}

func newEngine(sampleDir string) *Engine {
	e := &Engine{
		ctx:       context.Background(),
		CommandCh: make(chan []string, 256),
		events:    make(chan interface{}, 256),
		pool:      newVoicePool(maxPolyphony),
		volume:    defaultVolume,
		out:       make([]float64, samplesPerCycle*channelNum),
		sampleDir: sampleDir,
	}
	atomic.StoreUint64(&e.volumeBits, math.Float64bits(defaultVolume))
	go e.processCommands()
	return e
}

func (e *Engine) processCommands() {
	for command := range e.CommandCh {
		if err := e.update(command); err != nil {
			log.Printf("command failed: %v\n", err)
		}
	}
	log.Println("processCommands() ended.")
}

func (e *Engine) Read(buf []byte) (int, error) {
	select {
	case <-e.ctx.Done():
		log.Println("Read() interrupted.")
		return 0, io.EOF
	default:
		return e.renderBlock(buf), nil
	}
}

// renderBlock fills buf with one block of interleaved little-endian
// int16 samples and returns the number of bytes written. A fault inside
// the block must never reach the output device; the block degrades to
// silence instead.
func (e *Engine) renderBlock(buf []byte) (n int) {
	frames := len(buf) / bytesPerSample
	if frames > samplesPerCycle {
		frames = samplesPerCycle
	}
	n = frames * bytesPerSample
	defer func() {
		if r := recover(); r != nil {
			for i := 0; i < n; i++ {
				buf[i] = 0
			}
			log.Printf("render fault, block replaced with silence: %v\n", r)
		}
	}()
	e.drainEvents()
	out := e.out[:frames*channelNum]
	e.pool.mix(out, e.volume)
	e.pool.reclaim()
	atomic.StoreInt32(&e.activeCount, int32(len(e.pool.live)))
	writeBuffer(out, buf)
	return n
}

// drainEvents applies every control event that arrived before this
// block. It never blocks; an event enqueued mid-drain waits for the
// next block.
func (e *Engine) drainEvents() {
	for {
		select {
		case ev := <-e.events:
			switch data := ev.(type) {
			case *noteOn:
				sample := e.bank.Lookup(data.note)
				if sample == nil {
					continue // no sample mapped, not an error
				}
				e.pool.allocate(sample, data.note, data.velocity)
			case *noteOff:
				e.pool.release(data.note)
			case *setVolume:
				e.volume = data.value
			case *swapBank:
				// Voices still referencing the old bank are killed
				// before the pointer moves, so no block ever mixes
				// from a retired bank.
				e.pool.killAll()
				e.bank = data.bank
			}
		default:
			return
		}
	}
}

func writeBuffer(out []float64, buf []byte) {
	const max = 32767
	for i, value := range out {
		b := int16(value * max)
		buf[2*i] = byte(b)
		buf[2*i+1] = byte(b >> 8)
	}
}

// Close ...
func (e *Engine) Close() error {
	log.Println("Closing Engine...")
	close(e.CommandCh)
	if e.otoContext == nil {
		return nil
	}
	return e.otoContext.Close()
}

// Start pumps rendered blocks into the output device until ctx is done.
// A device-level failure ends the stream and is returned to the caller;
// the engine does not try to revive a dead device.
func (e *Engine) Start(ctx context.Context) error {
	p := e.otoContext.NewPlayer()
	defer func() {
		if err := p.Close(); err != nil {
			log.Printf("error: %v", err)
		}
	}()
	e.ctx = ctx

	// block until cancel() called
	if _, err := io.CopyBuffer(p, e, make([]byte, bufferSizeInBytes)); err != nil {
		return err
	}
	log.Println("Start() ended.")
	return nil
}
