// Command collider runs the synthesis engine: an OSC control surface
// in front of the voice graph, rendered to a host audio device.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/Cignor/Collider-sub001/control"
	"github.com/Cignor/Collider-sub001/device"
	"github.com/Cignor/Collider-sub001/graph"
	"github.com/Cignor/Collider-sub001/log"
	sig "github.com/Cignor/Collider-sub001/signal"
	"github.com/Cignor/Collider-sub001/voice"
)

var (
	listen     = flag.String("listen", "0.0.0.0:9000", "OSC listen address")
	backend    = flag.String("backend", "portaudio", "audio backend: portaudio, oto or wav")
	outFile    = flag.String("out", "collider.wav", "output file for the wav backend")
	sampleRate = flag.Float64("sr", 44100, "sample rate")
	blockSize  = flag.Int("block", 512, "render block size in frames")
	assets     = flag.String("assets", ".", "sampler resource directory")
	announce   = flag.Bool("announce", false, "advertise the control server over mDNS")
	name       = flag.String("name", "", "advertised service name (default: hostname)")
)

func main() {
	flag.Parse()
	logger := log.New()

	engine, err := graph.New(
		graph.WithLogger(logger),
		graph.WithLoader(voice.NewFileLoader(*assets, logger)),
	)
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}
	engine.Prepare(*sampleRate, *blockSize)

	var out device.Device
	switch *backend {
	case "portaudio":
		out = device.NewPortAudio()
	case "oto":
		out = device.NewOto()
	case "wav":
		out = device.NewWavFile(*outFile)
	default:
		logger.Fatalf("unknown backend %q", *backend)
	}
	if err := out.Prepare(*sampleRate, *blockSize); err != nil {
		logger.Fatalf("device: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := engine.Start(ctx); err != nil {
		logger.Fatalf("dispatch: %v", err)
	}
	if err := out.Start(func(block sig.Float64) error {
		engine.Render(block)
		return nil
	}); err != nil {
		logger.Fatalf("playback: %v", err)
	}

	server := control.NewServer(*listen, engine.Queue(), logger)
	if *announce {
		shutdown, err := control.Announce(serviceName(), listenPort(), logger)
		if err != nil {
			logger.Warnf("mdns: %v", err)
		} else {
			defer shutdown()
		}
	}
	go func() {
		if err := server.ListenAndServe(); err != nil {
			logger.Errorf("control: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	_ = server.Close()
	_ = out.Release()
	engine.Stop()
}

func serviceName() string {
	if *name != "" {
		return *name
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "collider"
	}
	return fmt.Sprintf("%s-collider", hostname)
}

func listenPort() int {
	_, portStr, err := net.SplitHostPort(*listen)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}
