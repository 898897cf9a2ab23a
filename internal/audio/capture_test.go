package audio

import (
	"errors"
	"testing"
)

func TestNegotiateFormatDefaultsToMixFormat(t *testing.T) {
	native := []Format{
		{SampleRate: 48000, Channels: 2, Sample: SampleFloat32},
		{SampleRate: 44100, Channels: 2, Sample: SampleInt16},
	}

	got, err := negotiateFormat(native, Format{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := native[0]
	if got != want {
		t.Errorf("negotiateFormat = %+v, want mix format %+v", got, want)
	}
}

func TestNegotiateFormatHonorsRequestedEncoding(t *testing.T) {
	native := []Format{{SampleRate: 48000, Channels: 2, Sample: SampleFloat32}}

	got, err := negotiateFormat(native, Format{Sample: SampleInt16})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Sample != SampleInt16 {
		t.Errorf("sample format = %s, want int16", got.Sample)
	}
	if got.SampleRate != 48000 || got.Channels != 2 {
		t.Errorf("rate/channels = %d/%d, want mix 48000/2", got.SampleRate, got.Channels)
	}
}

func TestNegotiateFormatMatchesNativeEntry(t *testing.T) {
	native := []Format{
		{SampleRate: 48000, Channels: 2, Sample: SampleFloat32},
		{SampleRate: 44100, Channels: 2, Sample: SampleInt16},
		{SampleRate: 44100, Channels: 1, Sample: SampleInt16},
	}

	got, err := negotiateFormat(native, Format{SampleRate: 44100, Channels: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.SampleRate != 44100 || got.Channels != 1 {
		t.Errorf("got %d Hz %d ch, want 44100 Hz 1 ch", got.SampleRate, got.Channels)
	}
}

func TestNegotiateFormatRejectsUnsupportedRate(t *testing.T) {
	native := []Format{
		{SampleRate: 48000, Channels: 2, Sample: SampleFloat32},
		{SampleRate: 44100, Channels: 2, Sample: SampleInt16},
	}

	_, err := negotiateFormat(native, Format{SampleRate: 22050})
	if !errors.Is(err, ErrFormatNegotiation) {
		t.Fatalf("error = %v, want ErrFormatNegotiation", err)
	}

	_, err = negotiateFormat(native, Format{Channels: 8})
	if !errors.Is(err, ErrFormatNegotiation) {
		t.Fatalf("error = %v, want ErrFormatNegotiation", err)
	}
}

func TestNegotiateFormatWildcardNativeEntry(t *testing.T) {
	// Some backends report zero fields meaning "anything goes".
	native := []Format{{SampleRate: 0, Channels: 0, Sample: SampleFloat32}}

	got, err := negotiateFormat(native, Format{SampleRate: 96000, Channels: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.SampleRate != 96000 || got.Channels != 4 {
		t.Errorf("got %d Hz %d ch, want requested 96000 Hz 4 ch", got.SampleRate, got.Channels)
	}
}

func TestNegotiateFormatNoNativeInfo(t *testing.T) {
	got, err := negotiateFormat(nil, Format{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != fallbackFormat {
		t.Errorf("got %+v, want fallback %+v", got, fallbackFormat)
	}

	got, err = negotiateFormat(nil, Format{SampleRate: 48000, Sample: SampleFloat32})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.SampleRate != 48000 || got.Sample != SampleFloat32 {
		t.Errorf("got %+v, want requested fields honored", got)
	}
}
