package vad

// Classifier decides whether a window of audio holds a completed utterance:
// speech somewhere in the window followed by a quieter trailing probe of
// probeMs milliseconds.
type Classifier interface {
	Detect(samples []float32, sampleRate, probeMs int, thold, freqThold float32) (bool, error)
	Close() error
}

// probeSamples returns the number of samples in the trailing probe, or zero
// if the window is too short to hold anything before it.
func probeSamples(n, sampleRate, probeMs int) int {
	nProbe := sampleRate * probeMs / 1000
	if nProbe <= 0 || nProbe >= n {
		return 0
	}
	return nProbe
}
