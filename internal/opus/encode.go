package opus

import (
	"io"
	"os/exec"
)

// Encode takes any audio as an io.Reader, runs FFmpeg to transcode it to
// Ogg Opus, and returns the encoded stream. The returned io.ReadCloser must
// be closed to clean up the FFmpeg process.
func Encode(r io.Reader) (io.ReadCloser, error) {
	return EncodeWith("ffmpeg", r)
}

// EncodeWith is Encode using the given ffmpeg executable.
func EncodeWith(executable string, r io.Reader) (io.ReadCloser, error) {
	ffmpeg := exec.Command(executable,
		"-i", "pipe:0",
		"-vn",
		"-map", "0:a",
		"-acodec", "libopus",
		"-f", "ogg",
		"-vbr", "on",
		"-compression_level", "10",
		"-ar", "48000",
		"-ac", "2",
		"-b:a", "64000",
		"-application", "audio",
		"-frame_duration", "20",
		"-packet_loss", "1",
		"-threads", "0",
		"-loglevel", "warning",
		"pipe:1",
	)

	ffmpeg.Stdin = r

	stdout, err := ffmpeg.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := ffmpeg.Start(); err != nil {
		return nil, err
	}

	return &encodeCloser{ReadCloser: stdout, cmd: ffmpeg}, nil
}

// encodeCloser wraps stdout and ensures the FFmpeg process is cleaned up.
type encodeCloser struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (e *encodeCloser) Close() error {
	// Kill FFmpeg if still running (e.g. the reader stopped early).
	if e.cmd.Process != nil {
		e.cmd.Process.Kill()
	}
	return e.cmd.Wait()
}
