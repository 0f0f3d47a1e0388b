package subchannel

import (
	"testing"
	"time"
)

func TestJitterBufferReleasesInTimestampOrder(t *testing.T) {
	jb := NewJitterBuffer(20 * time.Millisecond)
	jb.Push(AudioFrame{TimestampMs: 100, Data: []byte("b")})
	jb.Push(AudioFrame{TimestampMs: 80, Data: []byte("a")})

	frames, _ := jb.Release(130)
	if len(frames) != 2 {
		t.Fatalf("len(frames) = %d, want 2", len(frames))
	}
	if string(frames[0].Data) != "a" || string(frames[1].Data) != "b" {
		t.Fatalf("frames out of order: %+v", frames)
	}
}

func TestJitterBufferHoldsFramesUntilDepthElapses(t *testing.T) {
	jb := NewJitterBuffer(50 * time.Millisecond)
	jb.Push(AudioFrame{TimestampMs: 1000, Data: []byte("x")})

	frames, _ := jb.Release(1010)
	if len(frames) != 0 {
		t.Fatalf("expected frame to still be held, got %d", len(frames))
	}

	frames, _ = jb.Release(1060)
	if len(frames) != 1 {
		t.Fatalf("expected frame to be released after depth elapsed, got %d", len(frames))
	}
}

func TestJitterBufferDetectsGapBetweenReleases(t *testing.T) {
	jb := NewJitterBuffer(10 * time.Millisecond)
	jb.Push(AudioFrame{TimestampMs: 0})
	_, gap := jb.Release(20)
	if gap {
		t.Fatal("first release should never report a gap")
	}

	jb.Push(AudioFrame{TimestampMs: 500})
	_, gap = jb.Release(520)
	if !gap {
		t.Fatal("expected a gap to be detected across the missing interval")
	}
}

func TestJitterBufferLenReflectsPendingFrames(t *testing.T) {
	jb := NewJitterBuffer(time.Second)
	jb.Push(AudioFrame{TimestampMs: 0})
	jb.Push(AudioFrame{TimestampMs: 1})
	if jb.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", jb.Len())
	}
}
