package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/hajimehoshi/go-mp3"
)

// Convert decodes a WAV or MP3 container and returns mono linear16 PCM at
// the target sample rate. Raw PCM without a container is rejected because
// its layout cannot be known.
func Convert(data []byte, target EncodingInfo) ([]byte, error) {
	if target.Format != EncodingLinear16 {
		return nil, fmt.Errorf("%w: can only convert to linear16, not %q", ErrUnsupportedFormat, target.Format.Name())
	}
	if target.ChannelCount() != 1 {
		return nil, fmt.Errorf("%w: can only convert to mono, not %d channels", ErrUnsupportedFormat, target.ChannelCount())
	}

	var (
		pcm *PCM
		err error
	)
	switch {
	case isWAV(data):
		pcm, err = DecodeWAV(data)
	case isMP3(data):
		pcm, err = decodeMP3(data)
	default:
		return nil, fmt.Errorf("%w: unrecognised container", ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, err
	}

	return ToMonoLinear16(pcm, target.SampleRate)
}

// ToMonoLinear16 downmixes, resamples and requantizes decoded PCM.
func ToMonoLinear16(pcm *PCM, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if pcm.Channels == 1 && pcm.BitsPerSample == 16 && !pcm.Float && pcm.SampleRate == sampleRate {
		return bytes.Clone(pcm.Data[:len(pcm.Data)/2*2]), nil
	}

	mono, err := downmix(pcm)
	if err != nil {
		return nil, err
	}
	mono = resample(mono, pcm.SampleRate, sampleRate)

	out := make([]byte, len(mono)*2)
	for i, sample := range mono {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(quantize16(sample)))
	}
	return out, nil
}

func downmix(pcm *PCM) ([]float64, error) {
	sampleWidth := pcm.BitsPerSample / 8
	decode, err := sampleDecoder(pcm.BitsPerSample, pcm.Float)
	if err != nil {
		return nil, err
	}

	frameSize := sampleWidth * pcm.Channels
	frames := len(pcm.Data) / frameSize
	mono := make([]float64, frames)
	for i := range frames {
		frame := pcm.Data[i*frameSize : (i+1)*frameSize]
		var sum float64
		for ch := range pcm.Channels {
			sum += decode(frame[ch*sampleWidth : (ch+1)*sampleWidth])
		}
		mono[i] = sum / float64(pcm.Channels)
	}
	return mono, nil
}

func sampleDecoder(bitsPerSample int, float bool) (func([]byte) float64, error) {
	switch {
	case float && bitsPerSample == 32:
		return func(b []byte) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}, nil
	case float && bitsPerSample == 64:
		return func(b []byte) float64 {
			return math.Float64frombits(binary.LittleEndian.Uint64(b))
		}, nil
	case float:
	case bitsPerSample == 8:
		// 8-bit WAV is unsigned
		return func(b []byte) float64 { return (float64(b[0]) - 128) / 128 }, nil
	case bitsPerSample == 16:
		return func(b []byte) float64 {
			return float64(int16(binary.LittleEndian.Uint16(b))) / 32768
		}, nil
	case bitsPerSample == 24:
		return func(b []byte) float64 {
			v := int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8
			return float64(v) / (1 << 23)
		}, nil
	case bitsPerSample == 32:
		return func(b []byte) float64 {
			return float64(int32(binary.LittleEndian.Uint32(b))) / (1 << 31)
		}, nil
	}
	return nil, fmt.Errorf("%w: %d-bit samples (float=%t)", ErrUnsupportedFormat, bitsPerSample, float)
}

// resample uses linear interpolation, which is plenty for speech.
func resample(samples []float64, from, to int) []float64 {
	if from == to || len(samples) == 0 {
		return samples
	}

	outLen := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]float64, outLen)
	step := float64(from) / float64(to)
	for i := range out {
		position := float64(i) * step
		index := int(position)
		if index >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		fraction := position - float64(index)
		out[i] = samples[index]*(1-fraction) + samples[index+1]*fraction
	}
	return out
}

func quantize16(sample float64) int16 {
	scaled := math.Round(sample * 32767)
	switch {
	case scaled > math.MaxInt16:
		return math.MaxInt16
	case scaled < math.MinInt16:
		return math.MinInt16
	}
	return int16(scaled)
}

func decodeMP3(data []byte) (*PCM, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode mp3: %w", ErrUnsupportedFormat, err)
	}
	decoded, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode mp3: %w", ErrUnsupportedFormat, err)
	}

	// go-mp3 always yields 16-bit little-endian stereo
	return &PCM{Data: decoded, SampleRate: decoder.SampleRate(), Channels: 2, BitsPerSample: 16}, nil
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func isMP3(data []byte) bool {
	if len(data) >= 3 && string(data[0:3]) == "ID3" {
		return true
	}
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}
