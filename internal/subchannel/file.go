package subchannel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ErrFileTooLarge is returned by Offer when the declared size exceeds
// the receiver's configured limit (§4.10: "the receiver may refuse
// based on size limits").
var ErrFileTooLarge = fmt.Errorf("subchannel: file exceeds configured size limit")

// ErrDigestMismatch is returned by Finish when an optional digest was
// supplied and does not match the assembled content.
var ErrDigestMismatch = fmt.Errorf("subchannel: file digest mismatch")

// ErrUnknownTransfer is returned when a chunk or Finish call references
// a transfer ID that was never offered or has already completed.
var ErrUnknownTransfer = fmt.Errorf("subchannel: unknown file transfer")

// FileOffer describes an incoming file before any bytes arrive,
// grounded on the teacher's two-phase RecordingResult handoff
// (recording.go) generalized from a fixed MP4/VTT pair to an arbitrary
// named payload chunked over auxiliary frames.
type FileOffer struct {
	ID       string
	Name     string
	Size     int64
	Digest   string // optional, hex sha256; empty means unchecked
}

type inFlightTransfer struct {
	offer    FileOffer
	received int64
	chunks   [][]byte
}

// FileTransfer tracks inbound chunked transfers against a configured
// maximum size, verifying an optional digest once the transfer
// completes.
type FileTransfer struct {
	maxSize   int64
	inFlight  map[string]*inFlightTransfer
}

// NewFileTransfer builds a file transfer tracker that refuses any
// offer declaring more than maxSize bytes (0 means unlimited).
func NewFileTransfer(maxSize int64) *FileTransfer {
	return &FileTransfer{maxSize: maxSize, inFlight: make(map[string]*inFlightTransfer)}
}

// Offer registers an incoming transfer, rejecting it up front if its
// declared size exceeds the configured limit.
func (ft *FileTransfer) Offer(offer FileOffer) error {
	if ft.maxSize > 0 && offer.Size > ft.maxSize {
		return ErrFileTooLarge
	}
	ft.inFlight[offer.ID] = &inFlightTransfer{offer: offer}
	return nil
}

// Chunk appends a received chunk to transferID's assembly buffer.
func (ft *FileTransfer) Chunk(transferID string, data []byte) error {
	t, ok := ft.inFlight[transferID]
	if !ok {
		return ErrUnknownTransfer
	}
	t.received += int64(len(data))
	if ft.maxSize > 0 && t.received > ft.maxSize {
		delete(ft.inFlight, transferID)
		return ErrFileTooLarge
	}
	t.chunks = append(t.chunks, data)
	return nil
}

// Finish assembles transferID's chunks, verifies the offer's digest if
// one was given, and removes the transfer from tracking either way.
func (ft *FileTransfer) Finish(transferID string) ([]byte, error) {
	t, ok := ft.inFlight[transferID]
	if !ok {
		return nil, ErrUnknownTransfer
	}
	delete(ft.inFlight, transferID)

	total := make([]byte, 0, t.received)
	for _, c := range t.chunks {
		total = append(total, c...)
	}

	if t.offer.Digest != "" {
		sum := sha256.Sum256(total)
		if hex.EncodeToString(sum[:]) != t.offer.Digest {
			return nil, ErrDigestMismatch
		}
	}
	return total, nil
}

// Pending reports how many transfers are currently in flight, for
// metrics and idle cleanup.
func (ft *FileTransfer) Pending() int { return len(ft.inFlight) }
