package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/looprec/looprec/internal/audio"
	"github.com/looprec/looprec/internal/wav"
)

// fakeSource stands in for a capture session and lets tests drive frame
// delivery and failure modes directly.
type fakeSource struct {
	format   audio.Format
	startErr error

	mu      sync.Mutex
	onFrame func(audio.Frame)
	done    chan struct{}
	err     error
	closed  bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		format: audio.Format{SampleRate: 48000, Channels: 2, Sample: audio.SampleInt16},
		done:   make(chan struct{}),
	}
}

func (f *fakeSource) Format() audio.Format { return f.format }

func (f *fakeSource) Start(onFrame func(audio.Frame)) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.onFrame = onFrame
	f.mu.Unlock()
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeDone()
	return nil
}

func (f *fakeSource) Done() <-chan struct{} { return f.done }

func (f *fakeSource) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeSource) started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onFrame != nil
}

func (f *fakeSource) emit(data []byte) {
	f.mu.Lock()
	cb := f.onFrame
	f.mu.Unlock()
	if cb != nil {
		cb(audio.Frame{Data: data, Captured: time.Now()})
	}
}

// lose simulates the device disappearing mid-capture.
func (f *fakeSource) lose(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	f.closeDone()
}

func (f *fakeSource) closeDone() {
	if !f.closed {
		f.closed = true
		close(f.done)
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

type runResult struct {
	summary Summary
	err     error
}

func startRun(ctx context.Context, rec *Recorder) <-chan runResult {
	results := make(chan runResult, 1)
	go func() {
		summary, err := rec.Run(ctx)
		results <- runResult{summary, err}
	}()
	return results
}

func awaitRun(t *testing.T, results <-chan runResult) runResult {
	t.Helper()
	select {
	case res := <-results:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not finish")
		return runResult{}
	}
}

func testFrame(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}

func TestRunRecordsAndFinalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	src := newFakeSource()
	rec := New(Options{OutputPath: path, BufferFrames: 32}, src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	results := startRun(ctx, rec)

	waitFor(t, src.started, "capture to start")

	const frames, frameBytes = 20, 960
	for range frames {
		src.emit(testFrame(frameBytes))
	}
	waitFor(t, func() bool {
		return rec.Status().BytesWritten == frames*frameBytes
	}, "frames to reach the file")

	cancel()
	res := awaitRun(t, results)
	if res.err != nil {
		t.Fatalf("Run returned error: %v", res.err)
	}
	if res.summary.Bytes != frames*frameBytes {
		t.Errorf("summary bytes = %d, want %d", res.summary.Bytes, frames*frameBytes)
	}
	if res.summary.FramesDropped != 0 {
		t.Errorf("summary dropped = %d, want 0", res.summary.FramesDropped)
	}

	info, err := wav.Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.Format != src.format {
		t.Errorf("probed format = %v, want %v", info.Format, src.format)
	}
}

func TestRunStatusDuringRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.wav")
	src := newFakeSource()
	rec := New(Options{OutputPath: path, BufferFrames: 32}, src)

	if got := rec.Status().State; got != StateIdle {
		t.Errorf("state before Run = %q, want %q", got, StateIdle)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	results := startRun(ctx, rec)
	waitFor(t, src.started, "capture to start")

	status := rec.Status()
	if status.State != StateRecording {
		t.Errorf("state = %q, want %q", status.State, StateRecording)
	}
	if status.File != path {
		t.Errorf("file = %q, want %q", status.File, path)
	}
	if status.Format != src.format {
		t.Errorf("format = %v, want %v", status.Format, src.format)
	}

	cancel()
	res := awaitRun(t, results)
	if res.err != nil {
		t.Fatalf("Run returned error: %v", res.err)
	}
	if got := rec.Status().State; got != StateDone {
		t.Errorf("state after Run = %q, want %q", got, StateDone)
	}
}

func TestRunStopsAtMaxDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limited.wav")
	src := newFakeSource()
	rec := New(Options{OutputPath: path, MaxDuration: 100 * time.Millisecond, BufferFrames: 32}, src)

	results := startRun(context.Background(), rec)
	waitFor(t, src.started, "capture to start")
	src.emit(testFrame(960))

	res := awaitRun(t, results)
	if res.err != nil {
		t.Fatalf("Run returned error: %v", res.err)
	}
	if _, err := wav.Probe(path); err != nil {
		t.Errorf("Probe after duration limit: %v", err)
	}
}

func TestRunDeviceLostKeepsValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lost.wav")
	src := newFakeSource()
	rec := New(Options{OutputPath: path, BufferFrames: 32}, src)

	results := startRun(context.Background(), rec)
	waitFor(t, src.started, "capture to start")

	const frames, frameBytes = 5, 960
	for range frames {
		src.emit(testFrame(frameBytes))
	}
	waitFor(t, func() bool {
		return rec.Status().BytesWritten == frames*frameBytes
	}, "frames to reach the file")

	src.lose(audio.ErrDeviceLost)

	res := awaitRun(t, results)
	if !errors.Is(res.err, audio.ErrDeviceLost) {
		t.Fatalf("Run error = %v, want ErrDeviceLost", res.err)
	}
	if res.summary.Bytes != frames*frameBytes {
		t.Errorf("summary bytes = %d, want %d", res.summary.Bytes, frames*frameBytes)
	}

	// The partial file must still be a structurally valid WAV.
	if _, err := wav.Probe(path); err != nil {
		t.Errorf("Probe after device loss: %v", err)
	}

	status := rec.Status()
	if status.State != StateDone {
		t.Errorf("state = %q, want %q", status.State, StateDone)
	}
	if status.Error == "" {
		t.Error("status error is empty after device loss")
	}
}

func TestRunStartFailureLeavesNoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never.wav")
	src := newFakeSource()
	src.startErr = audio.ErrDeviceUnavailable

	rec := New(Options{OutputPath: path, BufferFrames: 32}, src)
	_, err := rec.Run(context.Background())
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("Run error = %v, want ErrDeviceUnavailable", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("output file exists after failed start, stat err = %v", err)
	}
}

func TestUploadConfigIsConfigured(t *testing.T) {
	var nilCfg *UploadConfig
	if nilCfg.IsConfigured() {
		t.Error("nil config reported as configured")
	}
	cfg := &UploadConfig{Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s"}
	if !cfg.IsConfigured() {
		t.Error("complete config reported as not configured")
	}
	cfg.SecretAccessKey = ""
	if cfg.IsConfigured() {
		t.Error("config without secret reported as configured")
	}
}
