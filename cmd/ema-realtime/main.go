// Command ema-realtime is a terminal client for a realtime conversational
// model: type to send text, record or stream your microphone and hear the
// reply through the speakers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/audio/miniaudio"
	"github.com/koscakluka/ema-realtime/core/audio/portaudio"
	"github.com/koscakluka/ema-realtime/core/clients"
	"github.com/koscakluka/ema-realtime/core/realtime"
)

type options struct {
	configPath string
	backend    string
	mode       string
	ephemeral  bool
}

func main() {
	os.Exit(runMain())
}

func runMain() int {
	opts := options{}
	flag.StringVar(&opts.configPath, "config", "", "YAML client configuration (defaults to openai-realtime)")
	flag.StringVar(&opts.backend, "backend", "portaudio", "audio backend: portaudio or miniaudio")
	flag.StringVar(&opts.mode, "mode", "", "override the configured mode: turn_based or streaming")
	flag.BoolVar(&opts.ephemeral, "ephemeral", false, "authenticate with a short lived client secret")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func run(opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	device, err := openDevice(opts.backend)
	if err != nil {
		return err
	}
	defer func() {
		if err := device.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "failed to close audio device:", err)
		}
	}()

	playback := audio.NewPlayback(device)
	defer playback.Cleanup()
	tracker := newPlayedAudio(playback)

	clientOpts := []realtime.ClientOption{realtime.WithPlayedAudio(tracker.played)}
	if opts.mode != "" {
		clientOpts = append(clientOpts, realtime.WithMode(realtime.Mode(opts.mode)))
	}
	if opts.ephemeral {
		clientOpts = append(clientOpts, realtime.WithEphemeralKey())
	}

	registry := clients.NewRegistry()
	if err := realtime.Register(registry, clientOpts...); err != nil {
		return err
	}
	client, err := loadClient(registry, opts.configPath)
	if err != nil {
		return err
	}

	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Disconnect()

	s := newSession(client, device, playback, tracker)
	program := tea.NewProgram(newModel(ctx, s), tea.WithAltScreen(), tea.WithContext(ctx))
	s.subscribe(program.Send)

	go func() {
		program.Send(runFinishedMsg{err: client.Run(ctx)})
	}()

	if err := s.startStreaming(ctx); err != nil {
		return err
	}
	defer s.stopCapture()

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func openDevice(backend string) (audio.Device, error) {
	switch backend {
	case "portaudio":
		return portaudio.NewClient()
	case "miniaudio":
		return miniaudio.NewClient()
	}
	return nil, fmt.Errorf("unknown audio backend %q", backend)
}

func loadClient(registry *clients.Registry, path string) (clients.ModelClient, error) {
	if path == "" {
		return registry.New("openai-realtime", nil)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open configuration: %w", err)
	}
	defer file.Close()
	return registry.Load(file)
}
