package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"

	"realtime-voice-agent/backend/internal/realtime"
	"realtime-voice-agent/backend/pkg/logger"
)

// WebRTCDialer negotiates a peer connection with the realtime endpoint by
// POSTing an SDP offer authorized by the ephemeral secret.
type WebRTCDialer struct {
	URL        string
	ICEServers []string
	Client     *http.Client
	Log        *logger.Logger
}

// NewWebRTCDialer creates a dialer for the default realtime endpoint.
func NewWebRTCDialer(iceServers []string, log *logger.Logger) *WebRTCDialer {
	return &WebRTCDialer{
		URL:        realtime.DefaultHTTPURL,
		ICEServers: iceServers,
		Client:     &http.Client{Timeout: 30 * time.Second},
		Log:        log,
	}
}

// webrtcTransport owns the peer connection and its data channel.
type webrtcTransport struct {
	pc        *webrtc.PeerConnection
	dc        *webrtc.DataChannel
	closeOnce sync.Once
	closeErr  error
}

// Dial implements Dialer.
func (d *WebRTCDialer) Dial(ctx context.Context, session *realtime.SessionDescriptor, audio AudioSource, h Handlers) (Transport, error) {
	if session == nil || session.ClientSecret.Value == "" {
		return nil, fmt.Errorf("%w: missing client secret", ErrMalformedSession)
	}

	cfg := webrtc.Configuration{}
	if len(d.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: d.ICEServers}}
	}

	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: create peer connection: %v", ErrNegotiation, err)
	}
	t := &webrtcTransport{pc: pc}

	fail := func(format string, err error) (Transport, error) {
		_ = pc.Close()
		return nil, fmt.Errorf("%w: "+format, ErrNegotiation, err)
	}

	var track webrtc.TrackLocal
	if audio != nil {
		track = audio.Track()
	}
	if track != nil {
		if _, err := pc.AddTrack(track); err != nil {
			return fail("add audio track: %v", err)
		}
	} else {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fail("add audio transceiver: %v", err)
		}
	}

	dc, err := pc.CreateDataChannel(realtime.DataChannelLabel, nil)
	if err != nil {
		return fail("create data channel: %v", err)
	}
	t.dc = dc

	dc.OnOpen(func() {
		if h.OnOpen != nil {
			h.OnOpen()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString && h.OnMessage != nil {
			h.OnMessage(msg.Data)
		}
	})

	// Remote audio is drained; playback belongs to the host.
	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if d.Log != nil {
			d.Log.Debug("remote track", "kind", remote.Kind().String(), "codec", remote.Codec().MimeType)
		}
		go func() {
			for {
				if _, _, err := remote.ReadRTP(); err != nil {
					return
				}
			}
		}()
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if h.OnState == nil {
			return
		}
		switch s {
		case webrtc.PeerConnectionStateConnected:
			h.OnState(TransportConnected)
		case webrtc.PeerConnectionStateDisconnected:
			h.OnState(TransportDisconnected)
		case webrtc.PeerConnectionStateFailed:
			h.OnState(TransportFailed)
		case webrtc.PeerConnectionStateClosed:
			h.OnState(TransportClosed)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fail("create offer: %v", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fail("set local description: %v", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return fail("ice gathering: %v", ctx.Err())
	}

	answer, err := d.sendOffer(ctx, session, pc.LocalDescription().SDP)
	if err != nil {
		return fail("%v", err)
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		return fail("set remote description: %v", err)
	}

	return t, nil
}

// sendOffer POSTs the local SDP and returns the answer SDP.
func (d *WebRTCDialer) sendOffer(ctx context.Context, session *realtime.SessionDescriptor, sdp string) (string, error) {
	endpoint := d.URL
	if endpoint == "" {
		endpoint = realtime.DefaultHTTPURL
	}
	endpoint += "?model=" + url.QueryEscape(session.Model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(sdp))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+session.ClientSecret.Value)
	req.Header.Set("Content-Type", "application/sdp")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("sdp exchange returned status %d", resp.StatusCode)
	}
	if len(body) == 0 {
		return "", errors.New("sdp exchange returned an empty answer")
	}
	return string(body), nil
}

// Send writes a text frame on the data channel.
func (t *webrtcTransport) Send(frame []byte) error {
	if t.dc == nil || t.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return fmt.Errorf("%w: data channel is not open", ErrTransport)
	}
	if err := t.dc.SendText(string(frame)); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// Close closes the data channel and the peer connection once.
func (t *webrtcTransport) Close() error {
	t.closeOnce.Do(func() {
		if t.dc != nil {
			_ = t.dc.Close()
		}
		t.closeErr = t.pc.Close()
	})
	return t.closeErr
}
