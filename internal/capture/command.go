package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	log "github.com/echocat/slf4g"

	"voiceassist/internal/config"
)

const stopGrace = 3 * time.Second

var defaultRecorderArgs = []string{"-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "wav", "-"}

// CommandDevice records by running an external program that writes the
// encoded audio to stdout until it is interrupted.
type CommandDevice struct {
	Command  string
	Args     []string
	MimeType string
}

// NewCommandDevice builds a recorder from configuration, defaulting to arecord.
func NewCommandDevice(cfg config.CaptureConfig) *CommandDevice {
	d := &CommandDevice{
		Command:  cfg.Command,
		Args:     cfg.Args,
		MimeType: cfg.MimeType,
	}
	if d.Command == "" {
		d.Command = "arecord"
		if len(d.Args) == 0 {
			d.Args = defaultRecorderArgs
		}
	}
	if d.MimeType == "" {
		d.MimeType = "audio/wav"
	}
	return d
}

type commandStream struct {
	path string
	args []string
	mime string

	mu     sync.Mutex
	active *commandRecording
}

func (s *commandStream) Source() string {
	return s.path
}

type commandRecording struct {
	stream *commandStream
	cmd    *exec.Cmd
	out    bytes.Buffer
	errOut bytes.Buffer
	done   chan struct{}
	err    error
}

func (r *commandRecording) Stream() Stream {
	return r.stream
}

func (d *CommandDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := exec.LookPath(d.Command)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, d.Command)
		}
		return nil, fmt.Errorf("%w: %s not found", ErrNoDevice, d.Command)
	}
	return &commandStream{path: path, args: d.Args, mime: d.MimeType}, nil
}

func (d *CommandDevice) Record(s Stream) (Recording, error) {
	cs, ok := s.(*commandStream)
	if !ok {
		return nil, errors.New("stream was not opened by this device")
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.active != nil {
		return nil, errors.New("stream is already recording")
	}

	rec := &commandRecording{stream: cs, done: make(chan struct{})}
	rec.cmd = exec.Command(cs.path, cs.args...)
	rec.cmd.Stdout = &rec.out
	rec.cmd.Stderr = &rec.errOut
	rec.cmd.WaitDelay = stopGrace
	if err := rec.cmd.Start(); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("%w: start recorder: %v", ErrNoDevice, err)
	}
	go func() {
		rec.err = rec.cmd.Wait()
		close(rec.done)
	}()
	cs.active = rec
	log.With("recorder", cs.path).Debug("Recording started.")
	return rec, nil
}

func (d *CommandDevice) Stop(r Recording) (Payload, error) {
	rec, ok := r.(*commandRecording)
	if !ok {
		return Payload{}, errors.New("recording was not started by this device")
	}

	exitedEarly := false
	select {
	case <-rec.done:
		exitedEarly = true
	default:
		interrupt(rec.cmd.Process)
		select {
		case <-rec.done:
		case <-time.After(stopGrace):
			_ = rec.cmd.Process.Kill()
			<-rec.done
		}
	}

	rec.stream.mu.Lock()
	rec.stream.active = nil
	rec.stream.mu.Unlock()

	if exitedEarly && rec.err != nil && rec.out.Len() == 0 {
		return Payload{}, fmt.Errorf("%w: recorder exited: %v: %s", ErrNoDevice, rec.err, bytes.TrimSpace(rec.errOut.Bytes()))
	}
	return Payload{Data: rec.out.Bytes(), MimeType: rec.stream.mime}, nil
}

func (d *CommandDevice) Release(s Stream) error {
	cs, ok := s.(*commandStream)
	if !ok || cs == nil {
		return nil
	}
	cs.mu.Lock()
	rec := cs.active
	cs.active = nil
	cs.mu.Unlock()
	if rec == nil {
		return nil
	}
	select {
	case <-rec.done:
		return nil
	default:
	}
	if err := rec.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill recorder: %w", err)
	}
	<-rec.done
	return nil
}

func interrupt(p *os.Process) {
	if p == nil {
		return
	}
	if runtime.GOOS == "windows" {
		_ = p.Kill()
		return
	}
	if err := p.Signal(os.Interrupt); err != nil {
		_ = p.Kill()
	}
}
