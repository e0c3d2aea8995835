// Package main provides a terminal speed reader.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/speedreader/internal/app/playback"
	"github.com/osa030/speedreader/internal/infra/logger"
)

var (
	app     = kingpin.New("speedread", "Reveal a text chunk by chunk at a fixed reading speed")
	file    = app.Arg("file", "Text file to read (default: stdin)").String()
	speed   = app.Flag("speed", "Reading speed in words per minute").Short('s').Default("250").Float64()
	chunk   = app.Flag("chunk", "Words revealed per tick").Short('c').Default("1").Int()
	inPlace = app.Flag("in-place", "Redraw each chunk on the same line").Bool()
	verbose = app.Flag("verbose", "Enable verbose (DEBUG) logging to stderr").Short('v').Bool()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	level := "warn"
	if *verbose {
		level = "debug"
	}
	if _, err := logger.Init(logger.Config{Output: "stderr", Level: level}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	text, err := readText(*file)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	engine, err := playback.New(text, playback.Config{
		SpeedWPM:      *speed,
		WordsPerChunk: *chunk,
		OnFinish:      func() { close(done) },
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	if len(engine.Snapshot().Words) == 0 {
		return errors.New("nothing to read")
	}

	unsubscribe := engine.Subscribe(func(ev playback.Event) {
		if ev.Type != playback.EventChunkRevealed {
			return
		}
		if *inPlace {
			fmt.Printf("\r\033[K%s", ev.Snapshot.VisibleText)
			return
		}
		fmt.Println(ev.Snapshot.VisibleText)
	})
	defer unsubscribe()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := engine.Play(); err != nil {
		return err
	}

	select {
	case <-done:
	case sig := <-sigCh:
		zlog.Debug().Msgf("interrupted by %s", sig)
		_ = engine.Pause()
	}

	if *inPlace {
		fmt.Println()
	}
	snap := engine.Snapshot()
	fmt.Fprintf(os.Stderr, "%d/%d words at %.0f wpm (%d remaining)\n",
		snap.Position, len(snap.Words), snap.SpeedWPM, snap.Remaining())
	return nil
}

func readText(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", errors.Wrap(err, "failed to read stdin")
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %s", path)
	}
	return string(data), nil
}
