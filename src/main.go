package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bearsound/bearsampler/src/sampler"
	"golang.org/x/sync/errgroup"
)

func main() {
	sampleDir := flag.String("samples", "/media/usb/BearSampler", "root directory of numbered preset directories")
	preset := flag.Int("preset", 0, "preset to load at startup")
	sockFileName := flag.String("sock", "/tmp/bearsampler.sock", "control socket path")
	flag.Parse()
	log.SetFlags(log.Lshortfile)

	ctx := context.Background()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	engine, err := sampler.NewEngine(*sampleDir)
	if err != nil {
		log.Fatalf("error: %v\n", err)
	}
	defer engine.Close()

	if err := engine.LoadPreset(*preset); err != nil {
		log.Printf("startup preset not loaded: %v\n", err)
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(signalCh)
		cancel()
	}()
	go func() {
		sig := <-signalCh
		log.Printf("Caught signal %s: shutting down...\n", sig)
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Start(ctx)
	})
	g.Go(func() error {
		midiIn := sampler.ListenToMidiIn(ctx)
		for {
			select {
			case <-ctx.Done():
				return nil
			case data, ok := <-midiIn:
				if !ok {
					return nil
				}
				engine.HandleMidiMessage(data)
			}
		}
	})
	g.Go(func() error {
		return serveControlSocket(ctx, *sockFileName, engine)
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("error: %v\n", err)
	}
	log.Println("main() ended.")
}

// serveControlSocket accepts one UI connection at a time: inbound lines
// are engine commands, outbound lines are periodic status reports.
func serveControlSocket(ctx context.Context, sockFileName string, engine *sampler.Engine) error {
	os.Remove(sockFileName)
	listener, err := new(net.ListenConfig).Listen(ctx, "unix", sockFileName)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	defer func() {
		log.Println("Closing control socket...")
		listener.Close()
		os.Remove(sockFileName)
	}()
	log.Printf("start listening on %s...\n", sockFileName)
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		if err := handleConnection(ctx, conn, engine); err != nil {
			log.Printf("control connection ended with error: %v\n", err)
		}
	}
}

func handleConnection(ctx context.Context, conn net.Conn, engine *sampler.Engine) error {
	g, ctx := errgroup.WithContext(ctx)
	// unblocks the reader when either side ends the session
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	g.Go(func() error {
		return receiveCommands(ctx, conn, engine.CommandCh)
	})
	g.Go(func() error {
		return sendReports(ctx, conn, engine)
	})
	return g.Wait()
}

func receiveCommands(ctx context.Context, conn net.Conn, commandCh chan<- []string) error {
	reader := bufio.NewReader(conn)
	var line []byte
loop:
	for {
		select {
		case <-ctx.Done():
			log.Println("Connection interrupted")
			break loop
		default:
		}
		next, isPrefix, err := reader.ReadLine()
		if err == io.EOF {
			break loop
		}
		if err != nil {
			return err
		}
		line = append(line, next...)
		if isPrefix {
			continue
		}
		if command := strings.Fields(string(line)); len(command) > 0 {
			commandCh <- command
			log.Printf("received: %s\n", string(line))
		}
		line = []byte{}
	}
	log.Println("receiveCommands() ended.")
	return nil
}

// sendReports pushes the display snapshot (voice count, volume, preset)
// on a fixed cadence, fully decoupled from the render callback.
func sendReports(ctx context.Context, conn net.Conn, engine *sampler.Engine) error {
	t := time.NewTicker(time.Second / 30)
	defer t.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			log.Println("sendReports() interrupted")
			break loop
		case <-t.C:
			s := fmt.Sprintf("status %d %.3f %d\n", engine.ActiveVoices(), engine.Volume(), engine.PresetID())
			if _, err := conn.Write([]byte(s)); err != nil {
				return err
			}
		}
	}
	log.Println("sendReports() ended.")
	return nil
}
