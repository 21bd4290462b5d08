package capture

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied reports that the capture source refused access.
	ErrPermissionDenied = errors.New("capture permission denied")
	// ErrNoDevice reports that no capture source is available.
	ErrNoDevice = errors.New("no capture device")
)

// DefaultMimeType is used when a device does not know its encoding.
const DefaultMimeType = "audio/webm"

// Payload is one finished recording.
type Payload struct {
	Data     []byte
	MimeType string
}

func (p Payload) Empty() bool {
	return len(p.Data) == 0
}

// Stream is an opened capture source.
type Stream interface {
	Source() string
}

// Recording accumulates audio from a Stream until stopped.
type Recording interface {
	Stream() Stream
}

// Device is the audio-recording resource. Open acquires the source, Record
// starts buffering, Stop finalizes the buffered audio and Release frees
// everything Open acquired.
type Device interface {
	Open(ctx context.Context) (Stream, error)
	Record(Stream) (Recording, error)
	Stop(Recording) (Payload, error)
	Release(Stream) error
}
