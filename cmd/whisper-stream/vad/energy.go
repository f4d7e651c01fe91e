package vad

import (
	"math"
)

// Energy compares the mean absolute amplitude of the trailing probe with the
// one of the whole window, after an optional high-pass filter.
type Energy struct{}

func NewEnergy() *Energy {
	return &Energy{}
}

func (e *Energy) Detect(samples []float32, sampleRate, probeMs int, thold, freqThold float32) (bool, error) {
	n := len(samples)
	nProbe := probeSamples(n, sampleRate, probeMs)
	if nProbe == 0 {
		return false, nil
	}

	data := samples
	if freqThold > 0 {
		data = make([]float32, n)
		copy(data, samples)
		highPass(data, freqThold, float32(sampleRate))
	}

	var energyAll, energyProbe float32
	for i, s := range data {
		a := float32(math.Abs(float64(s)))
		energyAll += a
		if i >= n-nProbe {
			energyProbe += a
		}
	}
	if energyAll == 0 {
		return false, nil
	}
	energyAll /= float32(n)
	energyProbe /= float32(nProbe)

	return energyProbe <= thold*energyAll, nil
}

func (e *Energy) Close() error {
	return nil
}

// highPass applies a first order RC high-pass filter in place.
func highPass(data []float32, cutoff, sampleRate float32) {
	if len(data) == 0 {
		return
	}

	rc := 1 / (2 * math.Pi * cutoff)
	dt := 1 / sampleRate
	alpha := dt / (rc + dt)

	y := data[0]
	prev := data[0]
	for i := 1; i < len(data); i++ {
		cur := data[i]
		y = alpha * (y + cur - prev)
		prev = cur
		data[i] = y
	}
}
