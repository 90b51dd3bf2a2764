package audio

import "time"

const (
	// DefaultSampleRate is the rate the realtime model consumes and produces.
	DefaultSampleRate = 24000
	DefaultFormat     = "linear16"
	DefaultChannels   = 1
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{
		SampleRate: DefaultSampleRate,
		Format:     encodingFormat(DefaultFormat),
		Channels:   DefaultChannels,
	}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
	Channels   int
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// ChannelCount treats an unset channel count as mono.
func (e EncodingInfo) ChannelCount() int {
	if e.Channels <= 0 {
		return 1
	}
	return e.Channels
}

// FrameSize is the number of bytes holding one sample for every channel.
func (e EncodingInfo) FrameSize() int {
	return e.Format.ByteSize() * e.ChannelCount()
}

// Duration of n bytes of audio in this encoding.
func (e EncodingInfo) Duration(n int) time.Duration {
	if e.SampleRate <= 0 || e.FrameSize() <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(e.FrameSize()) / float64(e.SampleRate) * float64(time.Second))
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	case EncodingLinear16:
		return 0
	}

	return 0
}

// PadWithSilence extends audio to size bytes with this encoding's silence.
func (e EncodingInfo) PadWithSilence(audio []byte, size int) []byte {
	if len(audio) >= size {
		return audio
	}
	padded := make([]byte, size)
	n := copy(padded, audio)
	if silence := e.SilenceValue(); silence != 0 {
		for i := n; i < size; i++ {
			padded[i] = silence
		}
	}
	return padded
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case encodingFormat("mulaw"), encodingFormat("alaw"):
		return 1
	case encodingFormat("linear16"):
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
