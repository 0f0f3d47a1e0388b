// Package encoder implements the encoder dispatch layer (C7, §4.7): a
// uniform adapter interface over external codec implementations, a
// capability registry built from their self-test at startup, and a
// worker pool that turns damage.EncodingJob requests into encoded
// frames.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xpra-project/session-core/internal/damage"
	"github.com/xpra-project/session-core/internal/wire"
)

// FailureClass distinguishes a one-off encode failure from one that
// means the encoder is unusable for the rest of the session (§4.7).
type FailureClass int

const (
	Transient FailureClass = iota
	Permanent
)

// Failure wraps an encoder error with its class so the dispatcher knows
// whether to fall back and retry or blacklist.
type Failure struct {
	Class FailureClass
	Err   error
}

func (f *Failure) Error() string { return f.Err.Error() }
func (f *Failure) Unwrap() error { return f.Err }

// TransientFailure wraps err as a retryable failure.
func TransientFailure(err error) error { return &Failure{Class: Transient, Err: err} }

// PermanentFailure wraps err as a session-long blacklist failure.
func PermanentFailure(err error) error { return &Failure{Class: Permanent, Err: err} }

// ClassOf inspects err for a *Failure and returns its class, defaulting
// to Transient for an encoder that didn't classify its own error.
func ClassOf(err error) FailureClass {
	var f *Failure
	if errors.As(err, &f) {
		return f.Class
	}
	return Transient
}

// SurfaceImage is the pixel source handed to an encoder: a reference-
// counted view onto the platform backend's captured buffer (§5 "Pixel
// buffers captured from the platform backend are reference-counted").
type SurfaceImage struct {
	Width, Height int
	Stride        int
	Pixels        []byte
	HasAlpha      bool
	Release       func()
}

// Capabilities is the descriptor an encoder declares at startup (§4.7:
// "self-test and capability descriptors at startup").
type Capabilities struct {
	Name             string
	SupportedInputs  []string // e.g. "bgra32", "rgb24", "nv12"
	AlphaSupport     bool
	LosslessSupport  bool
	MaxWidth         int
	MaxHeight        int
	ScrollSupported  bool
	DeltaSupported   bool
	IsVideo          bool
	ClientOrderIndex int // filled in by Registry.Candidates from the negotiated client order
}

// Encoder is the uniform adapter interface every codec implementation
// satisfies (§4.7: "encode(surface_image, region, quality, speed,
// encoder_options) -> (encoded_bytes, client_options)"). Implementations
// are external collaborators — this package only calls through this
// interface.
type Encoder interface {
	Capabilities() Capabilities
	SelfTest(ctx context.Context) error
	Encode(ctx context.Context, img SurfaceImage, region damage.Rect, quality, speed int, options map[string]wire.Value) (encoded []byte, clientOptions map[string]wire.Value, err error)
}

// Registry holds every encoder compiled into this build, keyed by name,
// after a successful startup self-test. Encoders that fail self-test are
// recorded but excluded from Candidates.
type Registry struct {
	mu       sync.RWMutex
	encoders map[string]Encoder
	failed   map[string]error
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{encoders: make(map[string]Encoder), failed: make(map[string]error)}
}

// Probe runs enc's self-test and, on success, registers it under its
// declared name.
func (r *Registry) Probe(ctx context.Context, enc Encoder) error {
	name := enc.Capabilities().Name
	if err := enc.SelfTest(ctx); err != nil {
		r.mu.Lock()
		r.failed[name] = err
		r.mu.Unlock()
		return fmt.Errorf("encoder %s: self-test failed: %w", name, err)
	}
	r.mu.Lock()
	r.encoders[name] = enc
	r.mu.Unlock()
	return nil
}

// Get returns the registered encoder by name.
func (r *Registry) Get(name string) (Encoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.encoders[name]
	return e, ok
}

// Failed reports every encoder name that failed self-test and why, for
// startup diagnostics.
func (r *Registry) Failed() map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]error, len(r.failed))
	for k, v := range r.failed {
		out[k] = v
	}
	return out
}

// Candidates builds the damage.EncoderCandidate list for a client's
// negotiated, ordered encoding list, preserving the client's preference
// order (§4.4 "client-order-preserved for encodings").
func (r *Registry) Candidates(clientOrder []string) []damage.EncoderCandidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := make([]damage.EncoderCandidate, 0, len(clientOrder))
	for i, name := range clientOrder {
		enc, ok := r.encoders[name]
		if !ok {
			continue
		}
		caps := enc.Capabilities()
		minQ, minS := qualitySpeedFloor(caps)
		candidates = append(candidates, damage.EncoderCandidate{
			Name:                  caps.Name,
			ClientPreferenceIndex: i,
			SupportsAlpha:         caps.AlphaSupport,
			SupportsLossless:      caps.LosslessSupport,
			SupportsScroll:        caps.ScrollSupported,
			SupportsDelta:         caps.DeltaSupported,
			IsVideo:               caps.IsVideo,
			MinQuality:            minQ,
			MinSpeed:              minS,
		})
	}
	return candidates
}
