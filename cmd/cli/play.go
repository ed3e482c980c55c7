package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/glizzus/harmony/internal/audio"
	"github.com/glizzus/harmony/internal/logger"
	"github.com/urfave/cli/v2"
)

// playCommand decodes an input through the same player the bot uses and
// writes the raw PCM frames to a file, so a pipeline can be checked with
// e.g. ffplay -f s16le -ar 48000 -ac 2.
func playCommand() *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     "Decode a file or URL into raw PCM frames",
		ArgsUsage: "<input>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Where frames are written, - for stdout",
				Value:   "-",
			},
			&cli.Float64Flag{
				Name:  "volume",
				Usage: "Linear gain from 0 to 2",
				Value: 1,
			},
			&cli.StringFlag{
				Name:  "ffmpeg",
				Usage: "ffmpeg executable",
				Value: "ffmpeg",
			},
		},
		Action: func(c *cli.Context) error {
			input := c.Args().First()
			if input == "" {
				return cli.Exit("Please provide an input file or URL", 1)
			}
			volume := c.Float64("volume")
			if volume < 0 || volume > 2 {
				return cli.Exit("The volume must be between 0 and 2", 1)
			}

			out, closeOut, err := openOutput(c.String("output"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer closeOut()

			src, err := audio.NewFFmpegSource(input, audio.FFmpegOptions{
				Executable: c.String("ffmpeg"),
				Volume:     volume,
				Stderr:     os.Stderr,
			})
			if err != nil {
				return cli.Exit("Failed to start ffmpeg: "+err.Error(), 1)
			}

			frames, err := play(c.Context, src, out)
			if err != nil {
				return cli.Exit("Playback failed: "+err.Error(), 1)
			}
			log.Printf("Played %d frames (%s).", frames, time.Duration(frames)*audio.FrameDuration)
			return nil
		},
	}
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// play runs src to completion without pacing frames in real time.
func play(ctx context.Context, src audio.Source, out io.Writer) (int, error) {
	var frames int
	tx := audio.TransmitterFunc(func(ctx context.Context, frame []byte) error {
		frames++
		_, err := out.Write(frame)
		return err
	})

	player := audio.NewPlayer(tx,
		audio.WithFrameInterval(time.Nanosecond),
		audio.WithLogger(logger.NewWriter(os.Stderr, "warn", "text")),
	)

	var playErr error
	done := player.Play(src, func(_ audio.Source, err error) {
		playErr = err
	})

	select {
	case <-done:
		return frames, playErr
	case <-ctx.Done():
		player.Stop()
		<-done
		return frames, ctx.Err()
	}
}
