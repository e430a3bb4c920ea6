package mixer

import (
	"errors"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/lithammer/shortuuid/v4"
)

var ErrAssetQueueFull = errors.New("asset queue full")

const assetQueueDepth = 16

// ffmpegDecode shells out to ffmpeg to turn any playable URL or file
// into raw mono PCM at the graph rate.
func ffmpegDecode(url string) (io.ReadCloser, error) {
	cmd := exec.Command("ffmpeg",
		"-i", url,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", "48000",
		"-loglevel", "error",
		"-")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err = cmd.Start(); err != nil {
		return nil, err
	}
	return &decodeStream{stdout, cmd}, nil
}

type decodeStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (d *decodeStream) Close() error {
	err := d.ReadCloser.Close()
	_ = d.cmd.Wait()
	return err
}

type assetJob struct {
	url  string
	done chan struct{}
}

// assetPlayer plays queued assets one at a time, back to back, through
// ephemeral gain stages.
type assetPlayer struct {
	mixer  *Mixer
	decode func(url string) (io.ReadCloser, error)
	queue  chan assetJob
	once   sync.Once
}

func newAssetPlayer(m *Mixer) *assetPlayer {
	return &assetPlayer{
		mixer:  m,
		decode: ffmpegDecode,
		queue:  make(chan assetJob, assetQueueDepth),
	}
}

// PlayAsset decodes and plays one asset through an ephemeral source.
// The returned channel closes when playback completes, so assets can be
// sequenced back to back.
func (m *Mixer) PlayAsset(url string) (<-chan struct{}, error) {
	m.assets.once.Do(func() { go m.assets.run() })

	job := assetJob{url: url, done: make(chan struct{})}
	select {
	case m.assets.queue <- job:
		return job.done, nil
	default:
		return nil, ErrAssetQueueFull
	}
}

func (p *assetPlayer) run() {
	for job := range p.queue {
		p.play(job)
	}
}

func (p *assetPlayer) play(job assetJob) {
	defer close(job.done)

	stream, err := p.decode(job.url)
	if err != nil {
		log.Errorf("cannot decode asset | error: %v, url: %s", err, job.url)
		return
	}
	defer stream.Close()

	input := NewFileInput()
	id := "asset_" + shortuuid.New()
	if err = p.mixer.AttachSource(id, input); err != nil {
		log.Errorf("cannot attach asset | error: %v, url: %s", err, job.url)
		return
	}
	defer func() {
		if err := p.mixer.DetachSource(id); err != nil {
			log.Warnf("cannot detach asset | error: %v, id: %s", err, id)
		}
	}()

	// Stream decoded PCM into the input. Reads are chunked to a frame so
	// the ring never overfills far ahead of the clock.
	buf := make([]byte, frameSamples*2)
	samples := make([]int16, frameSamples)
	for {
		n, err := io.ReadFull(stream, buf)
		if n > 0 {
			count := n / 2
			for i := 0; i < count; i++ {
				samples[i] = int16(buf[2*i]) | int16(buf[2*i+1])<<8
			}
			pushAll(input, samples[:count])
		}
		if err != nil {
			break
		}
	}

	input.Finish()
	<-input.Done()
	log.Debugf("asset played | url: %s, id: %s", job.url, id)
}

// pushAll feeds samples into the ring as the frame loop drains it.
func pushAll(input *FileInput, samples []int16) {
	for len(samples) > 0 {
		n := input.Push(samples)
		samples = samples[n:]
		if n == 0 {
			time.Sleep(frameMs * time.Millisecond / 2)
		}
	}
}
