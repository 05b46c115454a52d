package transcript

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestParseCueTimestamp(t *testing.T) {
	cases := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"00:00:01.830", 1.83, false},
		{"00:01:00.000", 60, false},
		{"01:02:03.500", 3723.5, false},
		{"02:03.500", 123.5, false},           // WebVTT short form
		{"00:00:01,830", 1.83, false},         // SRT comma separator
		{"garbage", 0, true},
		{"00:99:00.000", 0, true},
		{"", 0, true},
	}

	for _, tc := range cases {
		got, err := ParseCueTimestamp(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseCueTimestamp(%q): expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCueTimestamp(%q): unexpected error %v", tc.in, err)
			continue
		}
		if !almostEqual(got, tc.want) {
			t.Errorf("ParseCueTimestamp(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseCueTrackWebVTT(t *testing.T) {
	track := `WEBVTT
Kind: captions
Language: en

1
00:00:00.000 --> 00:00:01.830
I'm happy to
have you here today.

2
00:00:01.910 --> 00:00:03.610 align:start position:0%
As I'm sure you're <i>all</i> aware
`

	segments, err := ParseCueTrack(track)
	if err != nil {
		t.Fatalf("ParseCueTrack returned error: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}

	first := segments[0]
	if first.Text != "I'm happy to have you here today." {
		t.Errorf("cue lines not merged: %q", first.Text)
	}
	if !almostEqual(first.StartTime, 0) || !almostEqual(first.EndTime, 1.83) {
		t.Errorf("unexpected first cue range: %v-%v", first.StartTime, first.EndTime)
	}

	second := segments[1]
	if second.Text != "As I'm sure you're all aware" {
		t.Errorf("markup not stripped: %q", second.Text)
	}
	if !almostEqual(second.EndTime, 3.61) {
		t.Errorf("cue settings not dropped from end timestamp: %v", second.EndTime)
	}
}

func TestParseCueTrackSRT(t *testing.T) {
	track := `1
00:00:00,000 --> 00:00:02,500
Welcome back.

2
00:00:02,600 --> 00:00:05,000
<v Lecturer>Today we cover sorting.
`

	segments, err := ParseCueTrack(track)
	if err != nil {
		t.Fatalf("ParseCueTrack returned error: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[1].Text != "Today we cover sorting." {
		t.Errorf("voice tag not stripped: %q", segments[1].Text)
	}
}

func TestParseCueTrackEmpty(t *testing.T) {
	segments, err := ParseCueTrack("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 0 {
		t.Errorf("expected no segments, got %d", len(segments))
	}
}

func TestParseCueTrackMalformedTimestamp(t *testing.T) {
	_, err := ParseCueTrack("1\nnot-a-time --> 00:00:02.000\nhello\n")
	if err == nil {
		t.Error("expected error for malformed timestamp line")
	}
}

func TestFormatTimestamp(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00"},
		{59.9, "00:59"},
		{75, "01:15"},
		{3599, "59:59"},
		{3600, "1:00:00"},
		{3723.5, "1:02:03"},
		{-5, "00:00"},
	}

	for _, tc := range cases {
		if got := FormatTimestamp(tc.seconds); got != tc.want {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}
