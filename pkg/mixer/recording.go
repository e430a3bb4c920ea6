package mixer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/labstack/gommon/log"
	"github.com/lithammer/shortuuid/v4"
)

const RecordingsDir = "recordings"

var ErrAlreadyRecording = errors.New("already recording")
var ErrNotRecording = errors.New("not recording")

// recordingSink captures master-bus frames into a WAV file. Frame writes
// go to a buffered channel so the frame loop never blocks on disk.
type recordingSink struct {
	file    *os.File
	frames  chan []int16
	done    chan struct{}
	lock    sync.Mutex
	written uint32
}

const recordQueueFrames = 100 // one second of slack

func newRecordingSink() (*recordingSink, error) {
	name := fmt.Sprintf("%s/%s.wav", RecordingsDir, shortuuid.New())
	file, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	if err = writeWavHeader(file, 0); err != nil {
		file.Close()
		return nil, err
	}
	r := &recordingSink{
		file:   file,
		frames: make(chan []int16, recordQueueFrames),
		done:   make(chan struct{}),
	}
	go r.drain()
	return r, nil
}

func (r *recordingSink) WriteFrame(frame []int16) error {
	copied := make([]int16, len(frame))
	copy(copied, frame)
	select {
	case r.frames <- copied:
		return nil
	default:
		return errors.New("recording queue full")
	}
}

func (r *recordingSink) drain() {
	defer close(r.done)
	buf := make([]byte, frameSamples*2)
	for frame := range r.frames {
		if len(buf) < len(frame)*2 {
			buf = make([]byte, len(frame)*2)
		}
		for i, s := range frame {
			binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
		}
		if _, err := r.file.Write(buf[:len(frame)*2]); err != nil {
			log.Errorf("recording write failed | error: %v", err)
			return
		}
		r.written += uint32(len(frame) * 2)
	}
}

// finalise patches the header and closes the file, returning its name.
func (r *recordingSink) finalise() (string, error) {
	close(r.frames)
	<-r.done

	if _, err := r.file.Seek(0, 0); err != nil {
		r.file.Close()
		return "", err
	}
	if err := writeWavHeader(r.file, r.written); err != nil {
		r.file.Close()
		return "", err
	}
	name := r.file.Name()
	return name, r.file.Close()
}

// StartRecording begins capturing the master bus.
func (m *Mixer) StartRecording() error {
	m.lock.Lock()
	already := m.record != nil
	m.lock.Unlock()
	if already {
		return ErrAlreadyRecording
	}

	sink, err := newRecordingSink()
	if err != nil {
		return err
	}

	m.lock.Lock()
	m.record = sink
	m.lock.Unlock()
	m.AddSink(sink)
	log.Infof("recording started | file: %s", sink.file.Name())
	return nil
}

// StopRecording finalises the capture and returns the file holding the
// recorded payload.
func (m *Mixer) StopRecording() (string, error) {
	m.lock.Lock()
	sink := m.record
	m.record = nil
	m.lock.Unlock()
	if sink == nil {
		return "", ErrNotRecording
	}

	m.RemoveSink(sink)
	name, err := sink.finalise()
	if err != nil {
		return "", err
	}
	log.Infof("recording stopped | file: %s", name)
	return name, nil
}
