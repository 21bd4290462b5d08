package capture

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
)

// FileDevice replays an audio file as if it had just been recorded.
type FileDevice struct {
	Path     string
	MimeType string
}

type fileStream struct {
	path string
}

func (s *fileStream) Source() string {
	return s.path
}

type fileRecording struct {
	stream *fileStream
}

func (r *fileRecording) Stream() Stream {
	return r.stream
}

func (d *FileDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(d.Path)
	switch {
	case errors.Is(err, os.ErrPermission):
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, d.Path)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	case info.IsDir():
		return nil, fmt.Errorf("%w: %s is a directory", ErrNoDevice, d.Path)
	}
	return &fileStream{path: d.Path}, nil
}

func (d *FileDevice) Record(s Stream) (Recording, error) {
	fs, ok := s.(*fileStream)
	if !ok {
		return nil, errors.New("stream was not opened by this device")
	}
	return &fileRecording{stream: fs}, nil
}

func (d *FileDevice) Stop(r Recording) (Payload, error) {
	fr, ok := r.(*fileRecording)
	if !ok {
		return Payload{}, errors.New("recording was not started by this device")
	}
	data, err := os.ReadFile(fr.stream.path)
	if err != nil {
		return Payload{}, fmt.Errorf("read recording: %w", err)
	}
	return Payload{Data: data, MimeType: d.mimeType()}, nil
}

func (d *FileDevice) Release(Stream) error {
	return nil
}

func (d *FileDevice) mimeType() string {
	if d.MimeType != "" {
		return d.MimeType
	}
	switch ext := filepath.Ext(d.Path); ext {
	case ".wav":
		return "audio/wav"
	case ".webm":
		return "audio/webm"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
	}
	return DefaultMimeType
}
