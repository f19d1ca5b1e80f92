package scanner

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/djhieudonald74-stack/asset-registry/internal/eventsink"
	"github.com/djhieudonald74-stack/asset-registry/internal/folders"
	"github.com/djhieudonald74-stack/asset-registry/internal/model"
	"github.com/djhieudonald74-stack/asset-registry/internal/store/sqlstore"
)

func TestPauseResumeCancelTransitions(t *testing.T) {
	s := &Supervisor{state: StateRunning, cancel: make(chan struct{}), pauseGate: closedGate(), done: make(chan struct{}), sink: eventsink.Noop{}, runCtx: context.Background()}

	if !s.Pause() {
		t.Fatal("Pause() = false while RUNNING, want true")
	}
	if got := s.State(); got != StatePaused {
		t.Errorf("State() = %v after Pause(), want PAUSED", got)
	}
	if !s.Resume() {
		t.Fatal("Resume() = false while PAUSED, want true")
	}
	if got := s.State(); got != StateRunning {
		t.Errorf("State() = %v after Resume(), want RUNNING", got)
	}
	if !s.Cancel() {
		t.Fatal("Cancel() = false while RUNNING, want true")
	}
	if got := s.State(); got != StateCancelling {
		t.Errorf("State() = %v after Cancel(), want CANCELLING", got)
	}
}

func TestPauseFailsWhenNotRunning(t *testing.T) {
	s := &Supervisor{state: StateIdle}
	if s.Pause() {
		t.Error("Pause() = true while IDLE, want false")
	}
}

func TestResumeFailsWhenNotPaused(t *testing.T) {
	s := &Supervisor{state: StateRunning}
	if s.Resume() {
		t.Error("Resume() = true while RUNNING, want false")
	}
}

func TestCancelFromPausedReleasesGateImmediately(t *testing.T) {
	s := &Supervisor{state: StatePaused, cancel: make(chan struct{}), pauseGate: make(chan struct{})}
	if !s.Cancel() {
		t.Fatal("Cancel() = false while PAUSED, want true")
	}
	select {
	case <-s.pauseGate:
	default:
		t.Error("pauseGate was not closed on cancel from PAUSED, a paused worker would block waiting for resume")
	}
}

func TestStartFailsWhenNotIdle(t *testing.T) {
	s := &Supervisor{state: StateRunning}
	if s.Start(context.Background(), Options{}) {
		t.Error("Start() = true while already RUNNING, want false")
	}
}

func TestStartRunsToCompletionWithNoConfiguredRoots(t *testing.T) {
	st, err := sqlstore.OpenSQLite(context.Background(), ":memory:", 800)
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	resolver := folders.New(nil)
	sup := New(st, resolver, nil, 4, 0, nil)

	if !sup.Start(context.Background(), Options{Phase: PhaseFast, Roots: []model.Root{model.RootModels}}) {
		t.Fatal("Start() = false on an idle supervisor, want true")
	}
	if !sup.Wait(5 * time.Second) {
		t.Fatal("Wait() did not observe completion within the timeout")
	}
	if got := sup.State(); got != StateIdle {
		t.Errorf("State() after completion = %v, want IDLE", got)
	}
	_, progress := sup.Status()
	if progress.Scanned != 0 {
		t.Errorf("Scanned = %d, want 0 (no configured prefixes for the requested root)", progress.Scanned)
	}
}

func TestSniffSafetensorsUnrecognizedExtension(t *testing.T) {
	mime, meta := sniffHeader("model.ckpt")
	if mime != nil || meta != nil {
		t.Errorf("sniffHeader() for an unrecognized extension = (%v, %v), want (nil, nil)", mime, meta)
	}
}

func TestSniffSafetensorsMissingFile(t *testing.T) {
	mime, meta := sniffHeader("/nonexistent/path/model.safetensors")
	if mime != nil || meta != nil {
		t.Errorf("sniffHeader() for a missing file = (%v, %v), want (nil, nil)", mime, meta)
	}
}

func TestMergeMetadataPrefersFresh(t *testing.T) {
	existing := []byte(`{"steps": 10, "sampler": "ddim"}`)
	fresh := []byte(`{"steps": 20, "format": "safetensors"}`)

	merged := mergeMetadata(existing, fresh)

	var got map[string]any
	if err := json.Unmarshal(merged, &got); err != nil {
		t.Fatalf("unmarshaling merged metadata: %v", err)
	}
	if got["steps"] != float64(20) {
		t.Errorf("steps = %v, want 20 (fresh overrides existing)", got["steps"])
	}
	if got["sampler"] != "ddim" {
		t.Errorf("sampler = %v, want ddim (preserved from existing)", got["sampler"])
	}
	if got["format"] != "safetensors" {
		t.Errorf("format = %v, want safetensors (added from fresh)", got["format"])
	}
}

func TestMergeMetadataNilExisting(t *testing.T) {
	fresh := []byte(`{"format": "gguf"}`)
	merged := mergeMetadata(nil, fresh)

	var got map[string]any
	if err := json.Unmarshal(merged, &got); err != nil {
		t.Fatalf("unmarshaling merged metadata: %v", err)
	}
	if got["format"] != "gguf" {
		t.Errorf("format = %v, want gguf", got["format"])
	}
}
