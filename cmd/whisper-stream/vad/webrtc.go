package vad

import (
	"fmt"
	"slices"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

const (
	webrtcFrameMs     = 10
	WebRTCModeDefault = 2
)

var webrtcSampleRates = []int{8000, 16000, 32000, 48000}

// WebRTC classifies 10ms frames with the WebRTC voice detector and applies the
// energy rule to the ratio of voiced frames.
type WebRTC struct {
	vad   *webrtcvad.VAD
	frame []byte
}

// NewWebRTC creates a detector with the given aggressiveness, from 0 (least)
// to 3 (most).
func NewWebRTC(mode int) (*WebRTC, error) {
	if mode < 0 || mode > 3 {
		return nil, fmt.Errorf("invalid mode: should be in the range [0, 3]")
	}

	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create WebRTC VAD: %w", err)
	}

	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("failed to set VAD mode: %w", err)
	}

	return &WebRTC{
		vad: v,
	}, nil
}

func (w *WebRTC) Detect(samples []float32, sampleRate, probeMs int, thold, _ float32) (bool, error) {
	if !slices.Contains(webrtcSampleRates, sampleRate) {
		return false, fmt.Errorf("invalid sample rate %d: should be one of %v", sampleRate, webrtcSampleRates)
	}

	frameSize := sampleRate * webrtcFrameMs / 1000
	nFrames := len(samples) / frameSize
	nProbe := probeSamples(nFrames*frameSize, sampleRate, probeMs) / frameSize
	if nFrames == 0 || nProbe == 0 {
		return false, nil
	}

	if cap(w.frame) < frameSize*2 {
		w.frame = make([]byte, frameSize*2)
	}
	w.frame = w.frame[:frameSize*2]

	var voicedAll, voicedProbe int
	for i := 0; i < nFrames; i++ {
		for j, s := range samples[i*frameSize : (i+1)*frameSize] {
			v := int16(max(-1, min(1, s)) * 32767)
			w.frame[j*2] = byte(v)
			w.frame[j*2+1] = byte(v >> 8)
		}

		active, err := w.vad.Process(sampleRate, w.frame)
		if err != nil {
			return false, fmt.Errorf("failed to process frame: %w", err)
		}
		if !active {
			continue
		}

		voicedAll++
		if i >= nFrames-nProbe {
			voicedProbe++
		}
	}

	if voicedAll == 0 {
		return false, nil
	}

	ratioAll := float32(voicedAll) / float32(nFrames)
	ratioProbe := float32(voicedProbe) / float32(nProbe)

	return ratioProbe <= thold*ratioAll, nil
}

func (w *WebRTC) Close() error {
	return nil
}
