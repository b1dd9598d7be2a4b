package sampler

import (
	"context"
	"log"

	"gitlab.com/gomidi/rtmididrv"
)

// ----- MIDI In ----- //

// ListenToMidiIn opens the first MIDI IN port and forwards raw messages
// until ctx is done. The channel closes when the port shuts down.
func ListenToMidiIn(ctx context.Context) <-chan []byte {
	ch := make(chan []byte, 65536)
	go func() {
		drv, err := rtmididrv.New()
		if err != nil {
			log.Printf("failed to initialize MIDI driver: %v\n", err)
			return
		}
		defer func() {
			if err := drv.Close(); err != nil {
				log.Printf("failed to close MIDI driver: %v\n", err)
			}
		}()
		ins, err := drv.Ins()
		if err != nil {
			log.Printf("failed to get MIDI IN: %v\n", err)
			return
		}
		log.Printf("MIDI IN: %v\n", ins)
		if len(ins) == 0 {
			log.Println("WARN: no MIDI IN port")
			return
		}
		in := ins[0]
		if err := in.Open(); err != nil {
			log.Printf("failed to open MIDI IN: %v\n", err)
			return
		}
		log.Println("opened " + in.String())
		defer func() {
			if err := in.Close(); err != nil {
				log.Printf("failed to close MIDI IN: %v\n", err)
			}
		}()
		log.Println("start listening MIDI IN...")
		if err := in.SetListener(func(data []byte, deltaMicroseconds int64) {
			ch <- data
		}); err != nil {
			log.Println("failed to set listener: " + err.Error())
		}
		defer func() {
			log.Println("stop listening MIDI IN...")
			if err := in.StopListening(); err != nil {
				log.Printf("failed to stop listening: %v\n", err)
			}
		}()
		defer close(ch)
		<-ctx.Done()
	}()
	return ch
}

// HandleMidiMessage decodes a channel voice message into control calls.
// CC 7 is channel volume; everything else is ignored.
func (e *Engine) HandleMidiMessage(data []byte) {
	if len(data) < 3 {
		return
	}
	switch data[0] & 0xF0 {
	case 0x80:
		e.NoteOff(int(data[1]))
	case 0x90:
		e.NoteOn(int(data[1]), int(data[2])) // velocity 0 acts as note-off
	case 0xB0:
		if data[1] == 7 {
			e.SetVolume(float64(data[2]) / 127.0)
		}
	}
}
