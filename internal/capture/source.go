package capture

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultTone is the frequency of the plain "sine" source.
const DefaultTone = 1000.0

// Source describes one kind of source identifier accepted by NewDevice.
type Source struct {
	Pattern     string `json:"pattern"`
	Description string `json:"description"`
}

// Sources lists the accepted source identifiers.
func Sources() []Source {
	return []Source{
		{Pattern: "sine", Description: "synthetic 1 kHz tone"},
		{Pattern: "sine:<hz>[,<hz>...]", Description: "synthetic sum of the given tones"},
		{Pattern: "noise:<hz>", Description: "synthetic tone with gaussian noise"},
		{Pattern: "file:<path>", Description: "raw s16le mono PCM file, looped"},
	}
}

// NewDevice builds the device named by source. The device is not opened.
func NewDevice(source string) (Device, error) {
	kind, arg, _ := strings.Cut(strings.TrimSpace(source), ":")

	switch kind {
	case "sine":
		if arg == "" {
			return NewSineDevice([]float64{DefaultTone}), nil
		}
		tones, err := parseTones(arg)
		if err != nil {
			return nil, err
		}
		return NewSineDevice(tones), nil
	case "noise":
		tones := []float64{DefaultTone}
		if arg != "" {
			var err error
			if tones, err = parseTones(arg); err != nil {
				return nil, err
			}
		}
		return NewSineDevice(tones, WithNoise(0.05, 1)), nil
	case "file":
		if arg == "" {
			return nil, fmt.Errorf("%w: file source needs a path", ErrUnknownSource)
		}
		return NewFileDevice(arg), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
}

func parseTones(arg string) ([]float64, error) {
	parts := strings.Split(arg, ",")
	tones := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("%w: bad tone %q", ErrUnknownSource, p)
		}
		tones = append(tones, f)
	}
	return tones, nil
}
