package audio

// InputStream is an open, blocking capture stream. Read blocks until one
// frame buffer of audio is available and returns it; the returned slice is
// owned by the caller.
type InputStream interface {
	Read() ([]byte, error)
	Close() error
}

// OutputStream is an open, blocking playback stream. Write blocks until the
// device has accepted the audio.
type OutputStream interface {
	Write(audio []byte) error
	Close() error
}

type InputDevice interface {
	OpenInput(encoding EncodingInfo, framesPerBuffer int) (InputStream, error)
}

type OutputDevice interface {
	OpenOutput(encoding EncodingInfo, framesPerBuffer int) (OutputStream, error)
}

// Device is a backend able to open both directions, like the portaudio and
// miniaudio clients.
type Device interface {
	InputDevice
	OutputDevice
	Close() error
}

// DefaultFramesPerBuffer makes one device buffer of mono linear16 audio
// exactly one playback sub-chunk.
const DefaultFramesPerBuffer = 512
