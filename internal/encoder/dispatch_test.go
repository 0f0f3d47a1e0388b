package encoder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/xpra-project/session-core/internal/damage"
)

type fakeImageSource struct {
	img SurfaceImage
	err error
}

func (f *fakeImageSource) CaptureRegion(wid uint64, region damage.Rect) (SurfaceImage, error) {
	return f.img, f.err
}

func newTestDispatcher(t *testing.T, images ImageSource, encoders ...*fakeEncoder) (*Dispatcher, *damage.Scheduler) {
	t.Helper()
	registry := NewRegistry()
	order := make([]string, 0, len(encoders))
	for _, e := range encoders {
		if err := registry.Probe(context.Background(), e); err != nil {
			t.Fatalf("probe: %v", err)
		}
		order = append(order, e.caps.Name)
	}

	scheduler, err := damage.New(damage.Config{
		MinBatchDelay: time.Millisecond,
		MaxBatchDelay: 5 * time.Millisecond,
	}, nil, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("damage.New: %v", err)
	}

	d := NewDispatcher(registry, images, scheduler, order, 2, zerolog.Nop())
	return d, scheduler
}

func TestDispatcherEncodesAndCompletesJob(t *testing.T) {
	enc := &fakeEncoder{caps: Capabilities{Name: "png", LosslessSupport: true}, data: []byte("pixels")}
	images := &fakeImageSource{img: SurfaceImage{Width: 10, Height: 10}}
	d, scheduler := newTestDispatcher(t, images, enc)
	scheduler.AddSurface(1, damage.Rect{W: 10, H: 10}, damage.ContentAuto)

	// Put the surface into encoding (sequence 1) the way the scheduler
	// does before a job reaches the dispatcher; this scheduler has no
	// requester, so its timer fire requests nothing itself.
	scheduler.Damage(1, damage.Rect{W: 10, H: 10}, "")
	deadline := time.Now().Add(time.Second)
	for st, _ := scheduler.State(1); st != damage.StateEncoding && time.Now().Before(deadline); st, _ = scheduler.State(1) {
		time.Sleep(time.Millisecond)
	}

	d.RequestEncode(damage.EncodingJob{WID: 1, Sequence: 1, Region: damage.Rect{W: 10, H: 10}, Quality: 80, Speed: 50})
	d.Wait()

	state, ok := scheduler.State(1)
	if !ok {
		t.Fatal("surface missing")
	}
	if state != damage.StateAwaitingAck {
		t.Fatalf("state = %v, want awaiting-ack", state)
	}
}

func TestDispatcherNoUsableEncoderFails(t *testing.T) {
	images := &fakeImageSource{img: SurfaceImage{HasAlpha: true}}
	d, scheduler := newTestDispatcher(t, images)
	scheduler.AddSurface(2, damage.Rect{W: 5, H: 5}, damage.ContentAuto)

	d.RequestEncode(damage.EncodingJob{WID: 2, Sequence: 1, Region: damage.Rect{W: 5, H: 5}})
	d.Wait()

	// no candidates registered: scheduler should have re-armed the batch
	// timer rather than staying stuck in encoding.
	state, _ := scheduler.State(2)
	if state == damage.StateEncoding {
		t.Fatalf("state = %v, should not remain stuck encoding", state)
	}
}

func TestDispatcherTakesScrollShortcutWhenSupported(t *testing.T) {
	enc := &fakeEncoder{caps: Capabilities{Name: "h264", IsVideo: true, ScrollSupported: true}, data: []byte("pixels")}

	const stride, height = 4, 40
	prev := make([]byte, stride*height)
	for row := 0; row < height; row++ {
		prev[row*stride] = byte(row + 1) // distinct, non-zero per row
	}
	// curr is prev shifted down by 2 rows; the top 2 rows are new content.
	curr := make([]byte, stride*height)
	copy(curr[2*stride:], prev[:(height-2)*stride])

	images := &sequencedImageSource{imgs: []SurfaceImage{
		{Width: 1, Height: height, Stride: stride, Pixels: prev},
		{Width: 1, Height: height, Stride: stride, Pixels: curr},
	}}
	d, scheduler := newTestDispatcher(t, images, enc)
	scheduler.AddSurface(4, damage.Rect{W: 1, H: 40}, damage.ContentVideo)

	d.RequestEncode(damage.EncodingJob{WID: 4, Sequence: 1, Region: damage.Rect{W: 1, H: 40}, Quality: 80, Speed: 50})
	d.Wait()
	d.RequestEncode(damage.EncodingJob{WID: 4, Sequence: 2, Region: damage.Rect{W: 1, H: 40}, Quality: 80, Speed: 50})
	d.Wait()

	if enc.calls != 1 {
		t.Fatalf("expected the encoder to run only for the first (baseline) frame, calls=%d", enc.calls)
	}
}

// sequencedImageSource returns one SurfaceImage per call, in order, so a
// test can simulate successive captures of the same surface.
type sequencedImageSource struct {
	mu   sync.Mutex
	imgs []SurfaceImage
	i    int
}

func (s *sequencedImageSource) CaptureRegion(wid uint64, region damage.Rect) (SurfaceImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := s.imgs[s.i]
	if s.i < len(s.imgs)-1 {
		s.i++
	}
	return img, nil
}

func TestDispatcherSetClientOrderAffectsSelection(t *testing.T) {
	png := &fakeEncoder{caps: Capabilities{Name: "png", LosslessSupport: true}, data: []byte("a")}
	jpeg := &fakeEncoder{caps: Capabilities{Name: "jpeg", LosslessSupport: true}, data: []byte("b")}
	images := &fakeImageSource{img: SurfaceImage{Width: 4, Height: 4}}
	d, scheduler := newTestDispatcher(t, images, png, jpeg)
	scheduler.AddSurface(3, damage.Rect{W: 4, H: 4}, damage.ContentAuto)

	d.SetClientOrder([]string{"jpeg", "png"})
	d.RequestEncode(damage.EncodingJob{WID: 3, Sequence: 1, Region: damage.Rect{W: 4, H: 4}, Quality: 80, Speed: 50})
	d.Wait()

	if jpeg.calls == 0 {
		t.Fatal("expected jpeg to be preferred after SetClientOrder")
	}
}
