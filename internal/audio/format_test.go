package audio

import "testing"

func TestParseSampleFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    SampleFormat
		wantErr bool
	}{
		{"int16", SampleInt16, false},
		{"int24", SampleInt24, false},
		{"int32", SampleInt32, false},
		{"float32", SampleFloat32, false},
		{"", "", true},
		{"pcm", "", true},
		{"INT16", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSampleFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSampleFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSampleFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDerivedValues(t *testing.T) {
	f := Format{SampleRate: 48000, Channels: 2, Sample: SampleInt16}
	if got := f.BlockAlign(); got != 4 {
		t.Errorf("BlockAlign() = %d, want 4", got)
	}
	if got := f.ByteRate(); got != 192000 {
		t.Errorf("ByteRate() = %d, want 192000", got)
	}

	f = Format{SampleRate: 44100, Channels: 1, Sample: SampleInt24}
	if got := f.BlockAlign(); got != 3 {
		t.Errorf("BlockAlign() = %d, want 3", got)
	}

	f = Format{SampleRate: 96000, Channels: 6, Sample: SampleFloat32}
	if got := f.BlockAlign(); got != 24 {
		t.Errorf("BlockAlign() = %d, want 24", got)
	}
}
