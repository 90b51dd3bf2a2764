package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// WAVHeader is the canonical 44 byte header written in front of PCM data.
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// PCM is decoded, interleaved sample data together with its layout.
type PCM struct {
	Data          []byte
	SampleRate    int
	Channels      int
	BitsPerSample int
	Float         bool
}

// EncodeWAV wraps little-endian PCM in a WAV container describing its
// channel count, sample width and sample rate.
func EncodeWAV(pcm []byte, encoding EncodingInfo) ([]byte, error) {
	if encoding.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", encoding.SampleRate)
	}
	sampleWidth := encoding.Format.ByteSize()
	if sampleWidth <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, encoding.Format.Name())
	}

	numChannels := uint16(encoding.ChannelCount())
	bitsPerSample := uint16(sampleWidth * 8)
	dataSize := uint32(len(pcm))

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   wavFormatPCM,
		NumChannels:   numChannels,
		SampleRate:    uint32(encoding.SampleRate),
		ByteRate:      uint32(encoding.SampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// DecodeWAV parses a RIFF/WAVE container, skipping chunks it does not need.
func DecodeWAV(data []byte) (*PCM, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrUnsupportedFormat)
	}

	var (
		pcm       PCM
		hasFormat bool
		hasData   bool
	)
	for offset := 12; offset+8 <= len(data); {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := data[offset+8:]
		if chunkSize < 0 || chunkSize > len(body) {
			// Streamed files sometimes leave the size unset, take what is there.
			chunkSize = len(body)
		}
		body = body[:chunkSize]

		switch chunkID {
		case "fmt ":
			if len(body) < 16 {
				return nil, fmt.Errorf("%w: fmt chunk too short", ErrUnsupportedFormat)
			}
			audioFormat := binary.LittleEndian.Uint16(body[0:2])
			if audioFormat == wavFormatExtensible && len(body) >= 26 {
				audioFormat = binary.LittleEndian.Uint16(body[24:26])
			}
			switch audioFormat {
			case wavFormatPCM:
			case wavFormatFloat:
				pcm.Float = true
			default:
				return nil, fmt.Errorf("%w: WAV audio format %d", ErrUnsupportedFormat, audioFormat)
			}
			pcm.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			pcm.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			pcm.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			hasFormat = true
		case "data":
			pcm.Data = body
			hasData = true
		}

		offset += 8 + chunkSize + chunkSize%2
	}

	if !hasFormat {
		return nil, fmt.Errorf("%w: missing fmt chunk", ErrUnsupportedFormat)
	}
	if !hasData {
		return nil, fmt.Errorf("%w: missing data chunk", ErrUnsupportedFormat)
	}
	if pcm.Channels <= 0 || pcm.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d channels at %dHz", ErrUnsupportedFormat, pcm.Channels, pcm.SampleRate)
	}

	return &pcm, nil
}
