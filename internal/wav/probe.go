package wav

import (
	"fmt"
	"os"
	"time"

	gowav "github.com/go-audio/wav"

	"github.com/looprec/looprec/internal/audio"
)

// Info summarizes a finalized WAV file.
type Info struct {
	Format   audio.Format
	Duration time.Duration
}

// Probe reads back a finalized file and reports its format and duration.
// It fails when the file is not a structurally valid WAV, which makes it a
// useful self-check after recording.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	d := gowav.NewDecoder(f)
	if !d.IsValidFile() {
		return Info{}, fmt.Errorf("%s is not a valid WAV file", path)
	}

	dur, err := d.Duration()
	if err != nil {
		return Info{}, fmt.Errorf("read duration of %s: %w", path, err)
	}

	sample, err := sampleFormatOf(d.WavAudioFormat, d.BitDepth)
	if err != nil {
		return Info{}, fmt.Errorf("%s: %w", path, err)
	}

	return Info{
		Format: audio.Format{
			SampleRate: int(d.SampleRate),
			Channels:   int(d.NumChans),
			Sample:     sample,
		},
		Duration: dur,
	}, nil
}

func sampleFormatOf(tag, bitDepth uint16) (audio.SampleFormat, error) {
	switch {
	case tag == formatIEEEFloat && bitDepth == 32:
		return audio.SampleFloat32, nil
	case tag == formatPCM && bitDepth == 16:
		return audio.SampleInt16, nil
	case tag == formatPCM && bitDepth == 24:
		return audio.SampleInt24, nil
	case tag == formatPCM && bitDepth == 32:
		return audio.SampleInt32, nil
	}
	return "", fmt.Errorf("unsupported sample encoding (format tag %d, %d bits)", tag, bitDepth)
}
