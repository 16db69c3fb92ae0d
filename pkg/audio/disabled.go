package audio

// Disabled is a [Backend] with no devices. Every capture request reports
// [ErrPermissionDenied] and playback discards samples, which makes a session
// fall back to text input.
type Disabled struct{}

// NewContext implements [Backend].
func (Disabled) NewContext(sampleRate int) (DeviceContext, error) {
	return disabledContext{rate: sampleRate}, nil
}

type disabledContext struct{ rate int }

func (c disabledContext) SampleRate() int { return c.rate }

func (disabledContext) OpenInput(int) (InputStream, error) { return nil, ErrPermissionDenied }

func (disabledContext) OpenOutput(int) (OutputStream, error) { return discard{}, nil }

func (disabledContext) Close() error { return nil }

type discard struct{}

func (discard) Write([]float32) error { return nil }
func (discard) Close() error          { return nil }
