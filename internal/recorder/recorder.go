// Package recorder coordinates a capture session, frame buffer and WAV
// writer into a single recording run.
package recorder

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/looprec/looprec/internal/audio"
	"github.com/looprec/looprec/internal/util"
	"github.com/looprec/looprec/internal/wav"
)

// Source delivers captured PCM frames. *audio.Session implements it; tests
// substitute fakes.
type Source interface {
	Format() audio.Format
	Start(onFrame func(audio.Frame)) error
	Stop() error
	Done() <-chan struct{}
	Err() error
}

// State tracks the recorder lifecycle for status reporting.
type State string

const (
	// StateIdle indicates the run has not started yet.
	StateIdle State = "idle"
	// StateRecording indicates frames are being captured and written.
	StateRecording State = "recording"
	// StateFinalizing indicates the file is being closed out.
	StateFinalizing State = "finalizing"
	// StateDone indicates the run has finished.
	StateDone State = "done"
)

// Status is a point-in-time snapshot for status consumers.
type Status struct {
	State           State        `json:"state"`
	File            string       `json:"file"`
	Format          audio.Format `json:"format"`
	DurationSeconds float64      `json:"duration_seconds"`
	BytesWritten    int64        `json:"bytes_written"`
	FramesDropped   uint64       `json:"frames_dropped"`
	Levels          audio.Levels `json:"levels"`
	Error           string       `json:"error,omitzero"`
}

// Summary describes a finished recording run.
type Summary struct {
	Path          string
	Format        audio.Format
	Bytes         int64
	Duration      time.Duration
	FramesDropped uint64
	PeakDB        float64
	Uploaded      bool
}

// Options configure a recording run.
type Options struct {
	// OutputPath is the WAV file to produce.
	OutputPath string
	// MaxDuration stops the recording after this long; zero records until
	// the run context is canceled.
	MaxDuration time.Duration
	// BufferFrames is the frame buffer capacity between the capture
	// callback and the writer.
	BufferFrames int
	// Upload, when configured, sends the finished file to S3-compatible
	// storage after finalize.
	Upload *UploadConfig
}

// Recorder runs one capture-to-file session. The output file is finalized
// no matter what ends the run: the duration limit, context cancellation, a
// lost device or a write error.
type Recorder struct {
	opts   Options
	source Source
	meter  *audio.Meter

	mu      sync.RWMutex
	state   State
	writer  *wav.Writer
	buffer  *audio.FrameBuffer
	lastErr string
}

// New returns a Recorder for one run against the given source.
func New(opts Options, source Source) *Recorder {
	return &Recorder{
		opts:   opts,
		source: source,
		meter:  audio.NewMeter(source.Format()),
		state:  StateIdle,
	}
}

// Status returns a snapshot of the run. Levels cover the window since the
// previous snapshot.
func (r *Recorder) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Status{
		State:  r.state,
		File:   r.opts.OutputPath,
		Format: r.source.Format(),
		Levels: r.meter.Snapshot(),
		Error:  r.lastErr,
	}
	if r.writer != nil {
		s.DurationSeconds = r.writer.Duration().Seconds()
		s.BytesWritten = r.writer.BytesWritten()
	}
	if r.buffer != nil {
		s.FramesDropped = r.buffer.Dropped()
	}
	return s
}

// Run records until the context is canceled, the duration limit elapses,
// the device is lost or writing fails. It returns once the output file has
// been finalized.
func (r *Recorder) Run(ctx context.Context) (Summary, error) {
	format := r.source.Format()

	writer, err := wav.Create(r.opts.OutputPath, format)
	if err != nil {
		r.setState(StateDone, err)
		return Summary{}, err
	}
	buffer := audio.NewFrameBuffer(r.opts.BufferFrames)

	r.mu.Lock()
	r.writer = writer
	r.buffer = buffer
	r.state = StateRecording
	r.mu.Unlock()

	// The writer goroutine is the only consumer of the buffer and the only
	// code that touches the file while recording.
	writeFailed := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			frame, ok := buffer.Pop()
			if !ok {
				return
			}
			r.meter.Process(frame.Data)
			if err := writer.Write(frame.Data); err != nil {
				writeFailed <- err
				return
			}
		}
	}()

	// The capture callback only enqueues; a full buffer drops the frame
	// rather than stalling the delivery path.
	if err := r.source.Start(func(f audio.Frame) { buffer.Push(f) }); err != nil {
		buffer.Close()
		wg.Wait()
		if ferr := writer.Finalize(); ferr != nil {
			slog.Error("finalize after failed start", "error", ferr)
		}
		// Nothing was captured; do not leave an empty file behind.
		if writer.BytesWritten() == 0 {
			_ = os.Remove(r.opts.OutputPath)
		}
		r.setState(StateDone, err)
		return Summary{}, err
	}

	slog.Info("recording started", "file", r.opts.OutputPath, "format", format.String())

	var limit <-chan time.Time
	if r.opts.MaxDuration > 0 {
		t := time.NewTimer(r.opts.MaxDuration)
		defer t.Stop()
		limit = t.C
	}

	var cause error
	select {
	case <-ctx.Done():
		slog.Info("stop requested, finalizing recording")
	case <-limit:
		slog.Info("recording limit reached", "limit", util.FormatDuration(r.opts.MaxDuration))
	case <-r.source.Done():
		cause = r.source.Err()
		if cause != nil {
			slog.Error("capture stopped unexpectedly", "error", cause)
		}
	case cause = <-writeFailed:
		slog.Error("write failed, stopping capture", "error", cause)
	}

	r.setState(StateFinalizing, nil)

	if err := r.source.Stop(); err != nil {
		slog.Warn("error stopping capture session", "error", err)
	}
	buffer.Close()
	wg.Wait()

	// A write error can race the shutdown path; pick it up if it did.
	if cause == nil {
		select {
		case cause = <-writeFailed:
		default:
		}
	}

	if err := writer.Finalize(); err != nil {
		if cause == nil {
			cause = err
		} else {
			slog.Error("finalize failed", "error", err)
		}
	}

	summary := Summary{
		Path:          r.opts.OutputPath,
		Format:        format,
		Bytes:         writer.BytesWritten(),
		Duration:      writer.Duration(),
		FramesDropped: buffer.Dropped(),
		PeakDB:        r.meter.SessionPeakDB(),
	}

	if summary.FramesDropped > 0 {
		slog.Warn("frames dropped during capture", "count", summary.FramesDropped)
	}

	if cause == nil && r.opts.Upload.IsConfigured() {
		// The run context is usually canceled by now (Ctrl-C); the upload
		// still gets a chance to finish.
		uploadCtx := context.WithoutCancel(ctx)
		if err := uploadRecording(uploadCtx, r.opts.Upload, r.opts.OutputPath); err != nil {
			slog.Error("upload failed, keeping local file", "file", r.opts.OutputPath, "error", err)
		} else {
			summary.Uploaded = true
		}
	}

	r.setState(StateDone, cause)
	return summary, cause
}

func (r *Recorder) setState(s State, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
	if err != nil {
		r.lastErr = err.Error()
	}
}
