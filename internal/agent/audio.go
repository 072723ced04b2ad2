package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

// AudioSource is the local microphone side of a connection.
type AudioSource interface {
	// Start acquires the device. ctx bounds acquisition only.
	Start(ctx context.Context) error
	// Track returns the outbound track, or nil for sources without one.
	Track() webrtc.TrackLocal
	// Close releases the device. Safe to call more than once.
	Close() error
}

// opusFrameDuration is the packetization interval of the silence stream.
const opusFrameDuration = 20 * time.Millisecond

// opusSilenceFrame is a single 20ms Opus frame of digital silence.
var opusSilenceFrame = []byte{0xf8, 0xff, 0xfe}

// SilenceSource feeds an Opus track with silence. It stands in for a
// microphone on headless hosts so the peer still sees a live audio track.
type SilenceSource struct {
	mu     sync.Mutex
	track  *webrtc.TrackLocalStaticSample
	stop   chan struct{}
	done   chan struct{}
	closed bool
}

// NewSilenceSource creates an unstarted SilenceSource.
func NewSilenceSource() *SilenceSource {
	return &SilenceSource{}
}

// Start creates the track and begins writing frames.
func (s *SilenceSource) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: source closed", ErrMediaUnavailable)
	}
	if s.track != nil {
		return nil
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "realtime-voice-agent",
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}

	s.track = track
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(track, s.stop, s.done)
	return nil
}

func (s *SilenceSource) run(track *webrtc.TrackLocalStaticSample, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(opusFrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// Errors only mean no peer is bound yet.
			_ = track.WriteSample(media.Sample{Data: opusSilenceFrame, Duration: opusFrameDuration})
		}
	}
}

// Track implements AudioSource.
func (s *SilenceSource) Track() webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track == nil {
		return nil
	}
	return s.track
}

// Close stops the writer goroutine and waits for it.
func (s *SilenceSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stop, done := s.stop, s.done
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}
