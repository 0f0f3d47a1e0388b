package encoder

import (
	"context"
	"errors"
	"testing"

	"github.com/xpra-project/session-core/internal/damage"
	"github.com/xpra-project/session-core/internal/wire"
)

type fakeEncoder struct {
	caps    Capabilities
	selfErr error
	data    []byte
	encErr  error
	calls   int
}

func (f *fakeEncoder) Capabilities() Capabilities { return f.caps }
func (f *fakeEncoder) SelfTest(ctx context.Context) error { return f.selfErr }
func (f *fakeEncoder) Encode(ctx context.Context, img SurfaceImage, region damage.Rect, quality, speed int, options map[string]wire.Value) ([]byte, map[string]wire.Value, error) {
	f.calls++
	if f.encErr != nil {
		return nil, nil, f.encErr
	}
	return f.data, map[string]wire.Value{"encoder": f.caps.Name}, nil
}

func TestRegistryProbeAndCandidatesPreserveClientOrder(t *testing.T) {
	r := NewRegistry()
	png := &fakeEncoder{caps: Capabilities{Name: "png", LosslessSupport: true}}
	jpeg := &fakeEncoder{caps: Capabilities{Name: "jpeg"}}
	h264 := &fakeEncoder{caps: Capabilities{Name: "h264", IsVideo: true}}

	for _, e := range []*fakeEncoder{png, jpeg, h264} {
		if err := r.Probe(context.Background(), e); err != nil {
			t.Fatalf("probe %s: %v", e.caps.Name, err)
		}
	}

	candidates := r.Candidates([]string{"h264", "png", "jpeg"})
	if len(candidates) != 3 {
		t.Fatalf("len(candidates) = %d, want 3", len(candidates))
	}
	if candidates[0].Name != "h264" || candidates[0].ClientPreferenceIndex != 0 {
		t.Fatalf("candidates[0] = %+v, want h264 at index 0", candidates[0])
	}
	if candidates[0].MinQuality != 10 {
		t.Fatalf("video encoder MinQuality = %d, want 10", candidates[0].MinQuality)
	}
}

func TestRegistryExcludesFailedSelfTest(t *testing.T) {
	r := NewRegistry()
	broken := &fakeEncoder{caps: Capabilities{Name: "broken"}, selfErr: errors.New("boom")}
	if err := r.Probe(context.Background(), broken); err == nil {
		t.Fatal("expected probe error")
	}

	candidates := r.Candidates([]string{"broken"})
	if len(candidates) != 0 {
		t.Fatalf("len(candidates) = %d, want 0", len(candidates))
	}
	if _, ok := r.Failed()["broken"]; !ok {
		t.Fatal("expected broken encoder recorded in Failed()")
	}
}

func TestClassOfDefaultsToTransient(t *testing.T) {
	if ClassOf(errors.New("plain")) != Transient {
		t.Fatal("unwrapped errors should default to Transient")
	}
	if ClassOf(PermanentFailure(errors.New("fatal"))) != Permanent {
		t.Fatal("PermanentFailure should classify as Permanent")
	}
}

func TestLadderInterpolation(t *testing.T) {
	l := Ladder{MinBitrateBps: 100_000, MaxBitrateBps: 1_100_000}
	if got := l.Bitrate(0); got != 100_000 {
		t.Fatalf("Bitrate(0) = %d, want 100000", got)
	}
	if got := l.Bitrate(100); got != 1_100_000 {
		t.Fatalf("Bitrate(100) = %d, want 1100000", got)
	}
	if got := l.Bitrate(50); got != 600_000 {
		t.Fatalf("Bitrate(50) = %d, want 600000", got)
	}
}
