package sampler

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-audio/wav"
)

// ----- Sample Bank ----- //

// SampleBuffer is an immutable pre-decoded PCM buffer in the engine's
// native rate and channel count. Voices share it read-only.
type SampleBuffer struct {
	sampleRate int
	channels   int
	data       []float64 // interleaved
}

// Frames ...
func (b *SampleBuffer) Frames() int {
	return len(b.data) / b.channels
}

// SampleBank maps note numbers to sample buffers for one preset. Banks
// are built on the control context and never mutated after that; the
// render context adopts a bank by pointer swap only.
type SampleBank struct {
	id      int
	buffers map[int]*SampleBuffer
}

// Lookup ...
func (bk *SampleBank) Lookup(note int) *SampleBuffer {
	if bk == nil {
		return nil
	}
	return bk.buffers[note]
}

// Size ...
func (bk *SampleBank) Size() int {
	if bk == nil {
		return 0
	}
	return len(bk.buffers)
}

// LoadBank reads every WAV under <root>/<id> into a new bank. Files it
// cannot use are skipped with a log line; a missing preset directory is
// an error and leaves the caller's current bank untouched.
func LoadBank(root string, id int) (*SampleBank, error) {
	dir := filepath.Join(root, strconv.Itoa(id))
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("preset %d not found under %s", id, root)
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.wav"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	bank := &SampleBank{
		id:      id,
		buffers: make(map[int]*SampleBuffer),
	}
	for _, path := range paths {
		note, ok := noteFromFileName(filepath.Base(path))
		if !ok {
			log.Printf("skipping %s: no note number in file name\n", path)
			continue
		}
		buffer, err := loadSample(path)
		if err != nil {
			log.Printf("skipping %s: %v\n", path, err)
			continue
		}
		bank.buffers[note] = buffer
	}
	log.Printf("loaded preset %d: %d samples\n", id, len(bank.buffers))
	return bank, nil
}

// noteFromFileName extracts the note number from names like
// "piano_60.wav" (last underscore-separated field).
func noteFromFileName(name string) (int, bool) {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	i := strings.LastIndex(name, "_")
	if i < 0 {
		return 0, false
	}
	note, err := strconv.Atoi(name[i+1:])
	if err != nil || note < 0 || note > 127 {
		return 0, false
	}
	return note, true
}

func loadSample(path string) (*SampleBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d := wav.NewDecoder(f)
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if pcm.Format == nil || len(pcm.Data) == 0 {
		return nil, fmt.Errorf("empty or invalid wav")
	}
	if int(d.SampleRate) != sampleRate {
		// no resampling, playback is unity speed only
		return nil, fmt.Errorf("sample rate is %d, engine runs at %d", d.SampleRate, sampleRate)
	}
	channels := pcm.Format.NumChannels
	if channels != 1 && channels != channelNum {
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}
	scale := 1.0 / math.Pow(2, float64(d.BitDepth-1))
	frames := len(pcm.Data) / channels
	data := make([]float64, frames*channelNum)
	for i := 0; i < frames; i++ {
		for c := 0; c < channelNum; c++ {
			// mono sources feed both output channels
			s := pcm.Data[i*channels+c%channels]
			data[i*channelNum+c] = float64(s) * scale
		}
	}
	return &SampleBuffer{
		sampleRate: sampleRate,
		channels:   channelNum,
		data:       data,
	}, nil
}
