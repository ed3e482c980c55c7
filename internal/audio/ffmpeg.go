package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// stderrTail is how much ffmpeg diagnostics a failure carries.
const stderrTail = 512

// FFmpegOptions tune how the decoder subprocess is launched.
type FFmpegOptions struct {
	// Executable defaults to "ffmpeg" looked up on PATH.
	Executable string
	// BeforeOptions are placed before -i, e.g. input format or seek flags.
	BeforeOptions []string
	// Options are placed after the input, e.g. filters or duration limits.
	Options []string
	// Volume is the initial linear gain. Zero means unity.
	Volume float64
	// Stdin feeds the subprocess when the input is "pipe:0".
	Stdin io.Reader
	// Stderr receives the subprocess diagnostics. Nil discards them.
	Stderr io.Writer
}

// FFmpegArgs returns the argument list, excluding the executable, used to
// decode input into raw frames on stdout.
func FFmpegArgs(input string, opts FFmpegOptions) []string {
	args := make([]string, 0, len(opts.BeforeOptions)+len(opts.Options)+12)
	args = append(args, opts.BeforeOptions...)
	args = append(args, "-i", input)
	args = append(args, opts.Options...)
	args = append(args,
		"-f", "s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-loglevel", "warning",
		"pipe:1",
	)
	return args
}

// FFmpegSource decodes any media input ffmpeg understands. The subprocess is
// started once, at construction, and lives until Cleanup.
type FFmpegSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailWriter
	volume Volume
	killed atomic.Bool

	readMu sync.Mutex
	closed bool

	waitOnce sync.Once
	waitErr  error

	once       sync.Once
	cleanupErr error
}

func NewFFmpegSource(input string, opts FFmpegOptions) (*FFmpegSource, error) {
	exe := opts.Executable
	if exe == "" {
		exe = "ffmpeg"
	}

	// The process lifetime is bound to Cleanup rather than a context.
	cmd := exec.Command(exe, FFmpegArgs(input, opts)...)
	cmd.Stdin = opts.Stdin
	stderr := &tailWriter{limit: stderrTail}
	if opts.Stderr != nil {
		cmd.Stderr = io.MultiWriter(opts.Stderr, stderr)
	} else {
		cmd.Stderr = stderr
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("unable to pipe output of ffmpeg to stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("unable to start ffmpeg process: %w", err)
	}

	s := &FFmpegSource{cmd: cmd, stdout: stdout, stderr: stderr}
	if opts.Volume != 0 {
		s.volume.Store(opts.Volume)
	}
	return s, nil
}

// ReadFrame reads the next frame from the subprocess. If ctx is cancelled
// while the read is blocked, the subprocess is killed so the read returns.
// At the end of output the process is reaped; a non-zero exit is returned as
// an *FFmpegError.
func (s *FFmpegSource) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { _ = s.kill() })
	defer stop()

	s.readMu.Lock()
	defer s.readMu.Unlock()
	if s.closed {
		return nil, ErrSourceClosed
	}

	frame, err := readFrame(s.stdout)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to read from ffmpeg: %w", err)
	}
	if frame == nil {
		if err := s.exitError(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	ApplyVolume(frame, s.volume.Load())
	return frame, nil
}

// FFmpegError is a decoder process that exited on its own with a failure.
type FFmpegError struct {
	Err    error
	Stderr string
}

func (e *FFmpegError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg failed: %v", e.Err)
	}
	return fmt.Sprintf("ffmpeg failed: %v: %s", e.Err, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// exitError waits for the process after its output ended.
func (s *FFmpegSource) exitError() error {
	err := s.wait()
	if err == nil || s.killed.Load() {
		return nil
	}
	return &FFmpegError{Err: err, Stderr: s.stderr.String()}
}

func (s *FFmpegSource) wait() error {
	s.waitOnce.Do(func() { s.waitErr = s.cmd.Wait() })
	return s.waitErr
}

func (s *FFmpegSource) SetVolume(volume float64) {
	s.volume.Store(volume)
}

func (s *FFmpegSource) Volume() float64 {
	return s.volume.Load()
}

func (s *FFmpegSource) kill() error {
	s.killed.Store(true)
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill ffmpeg: %w", err)
	}
	return nil
}

// Cleanup kills the subprocess, waits for it and closes its pipes.
func (s *FFmpegSource) Cleanup() error {
	s.once.Do(func() {
		s.cleanupErr = s.kill()

		// Wait closes stdout, so no read may be in flight.
		s.readMu.Lock()
		defer s.readMu.Unlock()
		s.closed = true

		// A killed process exits with a non-zero status, which is expected.
		var exitErr *exec.ExitError
		if err := s.wait(); err != nil && !errors.As(err, &exitErr) {
			s.cleanupErr = errors.Join(s.cleanupErr, fmt.Errorf("failed to wait for ffmpeg: %w", err))
		}
	})
	return s.cleanupErr
}

// tailWriter keeps the last limit bytes written to it.
type tailWriter struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	if over := len(w.buf) - w.limit; over > 0 {
		w.buf = append(w.buf[:0], w.buf[over:]...)
	}
	return len(p), nil
}

func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.TrimSpace(string(w.buf))
}

var (
	_ Source     = (*FFmpegSource)(nil)
	_ Adjustable = (*FFmpegSource)(nil)
)
