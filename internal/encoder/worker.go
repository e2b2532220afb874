// Package encoder runs one external encoder process per platform and feeds it composed
// frames and audio.
package encoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sharetube/studio/internal/fault"
	"github.com/sharetube/studio/internal/media"
)

var (
	ErrSpawnFailed           = fault.New(fault.SpawnFailed, "failed to spawn encoder")
	ErrCodecUnavailable      = fault.New(fault.CodecUnavailable, "required codec unavailable")
	ErrQueueOverflowTerminal = fault.New(fault.QueueOverflowTerminal, "encoder stopped consuming frames")
	ErrWorkerExited          = fault.New(fault.WorkerExited, "encoder exited")
)

const (
	defaultAudioQueue  = 128
	defaultStderrLines = 20
	stderrDrainWait    = 200 * time.Millisecond
)

type Config struct {
	Binary      string
	ProbeCodecs bool
	Audio       media.AudioFormat
	Bundles     Bundles
	// VideoQueue is the per-worker frame queue length. Zero picks half a second of video,
	// never fewer than two frames.
	VideoQueue  int
	AudioQueue  int
	StderrLines int
}

func (c Config) withDefaults(p media.Preset) Config {
	if c.Binary == "" {
		c.Binary = "ffmpeg"
	}
	if c.Audio.BlockSize == 0 {
		c.Audio = media.DefaultAudioFormat
	}
	if c.Bundles.bundles == nil {
		c.Bundles = DefaultBundles()
	}
	if c.VideoQueue <= 0 {
		c.VideoQueue = p.FPS / 2
	}
	c.VideoQueue = max(2, c.VideoQueue)
	if p.FPS >= 2 {
		c.VideoQueue = min(c.VideoQueue, p.FPS)
	}
	if c.AudioQueue <= 0 {
		c.AudioQueue = defaultAudioQueue
	}
	if c.StderrLines <= 0 {
		c.StderrLines = defaultStderrLines
	}
	return c
}

type Health struct {
	Running       bool      `json:"running"`
	PID           int       `json:"pid,omitempty"`
	BytesSent     uint64    `json:"bytes_sent"`
	FramesSent    uint64    `json:"frames_sent"`
	DroppedFrames uint64    `json:"dropped_frames"`
	AudioOverruns uint64    `json:"audio_overruns"`
	Degraded      bool      `json:"degraded"`
	VideoQueued   int       `json:"video_queued"`
	StartedAt     time.Time `json:"started_at"`
	LastWriteAt   time.Time `json:"last_write_at,omitempty"`
}

// ExitInfo describes how the encoder process ended.
type ExitInfo struct {
	Code int `json:"code"`
	// Reason is worker_exited, or queue_overflow_terminal when the worker was aborted
	// for not consuming frames.
	Reason     fault.Code `json:"reason"`
	Error      string     `json:"error,omitempty"`
	StderrTail []string   `json:"stderr_tail,omitempty"`
	// Requested is true when the exit followed Stop.
	Requested bool      `json:"requested"`
	At        time.Time `json:"at"`
}

// Err converts an unrequested exit to a typed error.
func (e *ExitInfo) Err() error {
	if e == nil || e.Requested {
		return nil
	}

	base := ErrWorkerExited
	if e.Reason == fault.QueueOverflowTerminal {
		base = ErrQueueOverflowTerminal
	}

	msg := "exit status " + strconv.Itoa(e.Code)
	if n := len(e.StderrTail); n > 0 {
		msg += ": " + e.StderrTail[n-1]
	}
	return fault.WithState(fault.WithMessage(base, msg), e)
}

type Worker struct {
	platform string
	preset   media.Preset
	cmd      *exec.Cmd
	logger   *slog.Logger

	video  chan *media.Frame
	audio  chan media.AudioBlock
	videoW *os.File
	audioW *os.File

	flush     chan struct{}
	flushOnce sync.Once
	done      chan struct{}
	stderrEOF chan struct{}

	stopping atomic.Bool
	degraded atomic.Bool
	abort    atomic.Pointer[fault.Error]
	exit     atomic.Pointer[ExitInfo]
	stderr   *tail

	bytesSent     atomic.Uint64
	framesSent    atomic.Uint64
	dropped       atomic.Uint64
	audioOverruns atomic.Uint64
	lastWrite     atomic.Int64
	startedAt     time.Time
}

// Start validates the target, spawns the encoder and starts its I/O goroutines.
// ctx bounds only the startup checks; the process lives until Stop or Abort.
func Start(ctx context.Context, cfg Config, target Target, preset media.Preset, logger *slog.Logger) (*Worker, error) {
	cfg = cfg.withDefaults(preset)

	dest, err := target.Destination()
	if err != nil {
		return nil, err
	}

	bin, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return nil, fault.Wrap(ErrSpawnFailed, err)
	}

	if cfg.ProbeCodecs {
		if err := Probe(ctx, bin); err != nil {
			return nil, err
		}
	}

	args := BuildArgs(preset, cfg.Audio, cfg.Bundles.For(target.Platform, target.Bundle), dest)

	p, err := openPipes()
	if err != nil {
		return nil, fault.Wrap(ErrSpawnFailed, err)
	}

	cmd := exec.Command(bin, args...)
	cmd.Stdin = p.videoR
	cmd.Stdout = p.progressW
	cmd.Stderr = p.stderrW
	cmd.ExtraFiles = []*os.File{p.audioR}

	if err := cmd.Start(); err != nil {
		p.closeAll()
		return nil, fault.Wrap(ErrSpawnFailed, err)
	}
	p.closeChildEnds()

	w := &Worker{
		platform:  target.Platform,
		preset:    preset,
		cmd:       cmd,
		logger:    logger.With("platform", target.Platform, "pid", cmd.Process.Pid),
		video:     make(chan *media.Frame, cfg.VideoQueue),
		audio:     make(chan media.AudioBlock, cfg.AudioQueue),
		videoW:    p.videoW,
		audioW:    p.audioW,
		flush:     make(chan struct{}),
		done:      make(chan struct{}),
		stderrEOF: make(chan struct{}),
		stderr:    newTail(cfg.StderrLines),
		startedAt: time.Now(),
	}

	go w.readProgress(p.progressR)
	go w.readStderr(p.stderrR)
	go w.writeVideo()
	go w.writeAudio()
	go w.wait()

	w.logger.InfoContext(ctx, "encoder started",
		"preset", preset.Name,
		"video_queue", cfg.VideoQueue,
		"ingest", redact(dest),
	)

	return w, nil
}

func (w *Worker) Platform() string { return w.platform }

func (w *Worker) Preset() media.Preset { return w.preset }

// FeedVideo queues a frame without blocking. A full queue drops its oldest frame.
func (w *Worker) FeedVideo(f *media.Frame) {
	if w.stopping.Load() || w.exited() {
		return
	}
	if f.Width != w.preset.Width || f.Height != w.preset.Height {
		w.dropped.Add(1)
		return
	}

	select {
	case w.video <- f:
		return
	default:
	}

	select {
	case <-w.video:
		w.dropped.Add(1)
	default:
	}

	select {
	case w.video <- f:
	default:
		w.dropped.Add(1)
	}
}

// FeedAudio queues a block without blocking. Audio is never dropped to make room; a
// saturated queue marks the worker degraded.
func (w *Worker) FeedAudio(b media.AudioBlock) {
	if w.stopping.Load() || w.exited() {
		return
	}

	select {
	case w.audio <- b:
	default:
		w.audioOverruns.Add(1)
		if !w.degraded.Swap(true) {
			w.logger.Warn("audio queue saturated, worker degraded")
		}
	}
}

// Stop flushes the queues, closes the encoder's inputs and waits for it to exit. After
// timeout the process is killed. Stop returns once the exit has been observed.
func (w *Worker) Stop(timeout time.Duration) error {
	w.stopping.Store(true)
	w.flushOnce.Do(func() { close(w.flush) })

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.done:
		return nil
	case <-timer.C:
	}

	w.logger.Warn("encoder did not exit in time, killing", "timeout", timeout)
	if err := w.kill(); err != nil {
		return err
	}
	<-w.done

	return nil
}

// Abort kills the encoder immediately and records reason as the exit cause.
func (w *Worker) Abort(reason *fault.Error) {
	w.abort.CompareAndSwap(nil, reason)
	if err := w.kill(); err != nil {
		w.logger.Error("failed to abort encoder", "error", err)
	}
}

func (w *Worker) kill() error {
	if err := w.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill encoder: %w", err)
	}
	return nil
}

// Done is closed once the process has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// ExitInfo is nil while the process runs.
func (w *Worker) ExitInfo() *ExitInfo {
	return w.exit.Load()
}

func (w *Worker) Degraded() bool {
	return w.degraded.Load()
}

// Stalled reports a full video queue with no successful write for longer than after.
func (w *Worker) Stalled(after time.Duration) bool {
	if w.exited() || len(w.video) < cap(w.video) {
		return false
	}

	last := w.startedAt
	if n := w.lastWrite.Load(); n != 0 {
		last = time.Unix(0, n)
	}
	return time.Since(last) > after
}

func (w *Worker) Health() Health {
	h := Health{
		Running:       !w.exited(),
		BytesSent:     w.bytesSent.Load(),
		FramesSent:    w.framesSent.Load(),
		DroppedFrames: w.dropped.Load(),
		AudioOverruns: w.audioOverruns.Load(),
		Degraded:      w.degraded.Load(),
		VideoQueued:   len(w.video),
		StartedAt:     w.startedAt,
	}
	if w.cmd != nil && w.cmd.Process != nil {
		h.PID = w.cmd.Process.Pid
	}
	if n := w.lastWrite.Load(); n != 0 {
		h.LastWriteAt = time.Unix(0, n)
	}
	return h
}

func (w *Worker) exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *Worker) writeVideo() {
	defer w.videoW.Close()

	write := func(f *media.Frame) bool {
		if _, err := w.videoW.Write(f.Data); err != nil {
			w.logger.Debug("video pipe closed", "error", err)
			return false
		}
		w.framesSent.Add(1)
		w.lastWrite.Store(time.Now().UnixNano())
		return true
	}

	for {
		select {
		case f := <-w.video:
			if !write(f) {
				return
			}
		case <-w.flush:
			for {
				select {
				case f := <-w.video:
					if !write(f) {
						return
					}
				default:
					return
				}
			}
		case <-w.done:
			return
		}
	}
}

func (w *Worker) writeAudio() {
	defer w.audioW.Close()

	write := func(b media.AudioBlock) bool {
		if _, err := w.audioW.Write(b.Bytes()); err != nil {
			w.logger.Debug("audio pipe closed", "error", err)
			return false
		}
		return true
	}

	for {
		select {
		case b := <-w.audio:
			if !write(b) {
				return
			}
		case <-w.flush:
			for {
				select {
				case b := <-w.audio:
					if !write(b) {
						return
					}
				default:
					return
				}
			}
		case <-w.done:
			return
		}
	}
}

// readProgress consumes -progress key=value lines.
func (w *Worker) readProgress(r io.ReadCloser) {
	defer r.Close()

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok || key != "total_size" {
			continue
		}
		if n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64); err == nil {
			w.bytesSent.Store(n)
		}
	}
}

func (w *Worker) readStderr(r io.ReadCloser) {
	defer close(w.stderrEOF)
	defer r.Close()

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		w.stderr.add(line)
		w.logger.Debug("encoder stderr", "line", line)
	}
}

func (w *Worker) wait() {
	err := w.cmd.Wait()

	select {
	case <-w.stderrEOF:
	case <-time.After(stderrDrainWait):
	}

	info := &ExitInfo{
		Code:       w.cmd.ProcessState.ExitCode(),
		Reason:     fault.WorkerExited,
		StderrTail: w.stderr.lines(),
		Requested:  w.stopping.Load(),
		At:         time.Now(),
	}
	if reason := w.abort.Load(); reason != nil {
		info.Reason = reason.Code
		info.Requested = false
	}
	if err != nil {
		info.Error = err.Error()
	}

	w.exit.Store(info)
	close(w.done)

	if info.Requested {
		w.logger.Info("encoder exited", "code", info.Code)
	} else {
		w.logger.Warn("encoder exited unexpectedly",
			"code", info.Code,
			"reason", info.Reason,
			"error", info.Error,
			"stderr_tail", info.StderrTail,
		)
	}
}

func redact(dest string) string {
	i := strings.LastIndex(dest, "/")
	if i < 0 {
		return dest
	}
	return dest[:i+1] + "***"
}

type pipes struct {
	videoR, videoW       *os.File
	audioR, audioW       *os.File
	progressR, progressW *os.File
	stderrR, stderrW     *os.File
}

func openPipes() (*pipes, error) {
	p := &pipes{}
	var err error

	if p.videoR, p.videoW, err = os.Pipe(); err != nil {
		return nil, err
	}
	if p.audioR, p.audioW, err = os.Pipe(); err != nil {
		p.closeAll()
		return nil, err
	}
	if p.progressR, p.progressW, err = os.Pipe(); err != nil {
		p.closeAll()
		return nil, err
	}
	if p.stderrR, p.stderrW, err = os.Pipe(); err != nil {
		p.closeAll()
		return nil, err
	}

	return p, nil
}

func (p *pipes) closeChildEnds() {
	for _, f := range []*os.File{p.videoR, p.audioR, p.progressW, p.stderrW} {
		if f != nil {
			f.Close()
		}
	}
}

func (p *pipes) closeAll() {
	p.closeChildEnds()
	for _, f := range []*os.File{p.videoW, p.audioW, p.progressR, p.stderrR} {
		if f != nil {
			f.Close()
		}
	}
}

type tail struct {
	mu    sync.Mutex
	max   int
	items []string
}

func newTail(n int) *tail {
	return &tail{max: n}
}

func (t *tail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.items = append(t.items, line)
	if len(t.items) > t.max {
		t.items = t.items[len(t.items)-t.max:]
	}
}

func (t *tail) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]string(nil), t.items...)
}
