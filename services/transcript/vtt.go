package transcript

import (
	"strings"

	"golang.org/x/net/html"
)

// ParseCueTrack parses a cue-based timed-text track (WebVTT or SRT) into
// Segments.
//
//	WEBVTT
//
//	1
//	00:00:00.000 --> 00:00:01.830
//	I'm happy to
//	have you here today.
//
// Cue numbering is skipped, cue markup (<c>, <i>, <v Speaker>) is stripped,
// and the lines of one blank-separated cue merge into a single segment.
func ParseCueTrack(trackText string) ([]Segment, error) {
	if strings.TrimSpace(trackText) == "" {
		return []Segment{}, nil
	}

	lines := strings.Split(trackText, "\n")
	var segments []Segment

	var cueStart, cueEnd float64
	var cueText strings.Builder
	inCue := false

	flush := func() {
		if !inCue {
			return
		}
		text := strings.TrimSpace(cueText.String())
		if text != "" {
			segments = append(segments, Segment{
				Text:      text,
				StartTime: cueStart,
				EndTime:   cueEnd,
			})
		}
		cueText.Reset()
		inCue = false
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)

		// Blank line ends the current cue
		if line == "" {
			flush()
			continue
		}

		// Header and metadata blocks
		if strings.HasPrefix(line, "WEBVTT") || strings.HasPrefix(line, "NOTE") ||
			strings.HasPrefix(line, "STYLE") || strings.HasPrefix(line, "REGION") ||
			strings.HasPrefix(line, "Kind:") || strings.HasPrefix(line, "Language:") {
			continue
		}

		// timestamp line (start --> end), possibly followed by cue settings
		if strings.Contains(line, "-->") {
			flush()
			parts := strings.SplitN(line, "-->", 2)
			if len(parts) != 2 {
				continue
			}
			endPart := strings.TrimSpace(parts[1])
			// Drop cue settings like "align:start position:0%"
			if i := strings.IndexAny(endPart, " \t"); i >= 0 {
				endPart = endPart[:i]
			}

			start, err := ParseCueTimestamp(parts[0])
			if err != nil {
				return nil, err
			}
			end, err := ParseCueTimestamp(endPart)
			if err != nil {
				return nil, err
			}

			cueStart, cueEnd = start, end
			inCue = true
			continue
		}

		// Cue numbering (or a stray identifier before the timestamp line)
		if !inCue {
			continue
		}

		text := stripCueMarkup(line)
		if text == "" {
			continue
		}
		if cueText.Len() > 0 {
			cueText.WriteString(" ")
		}
		cueText.WriteString(text)
	}
	flush()

	return segments, nil
}

// stripCueMarkup removes inline cue tags (<c.classname>, <i>, <v Speaker>,
// karaoke timestamps) and returns the plain text.
func stripCueMarkup(line string) string {
	if !strings.Contains(line, "<") {
		return strings.TrimSpace(line)
	}

	var out strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(line))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			out.WriteString(tokenizer.Token().Data)
		}
	}
	return strings.Join(strings.Fields(out.String()), " ")
}

// JoinSegments rebuilds the full transcript text from ordered segments
func JoinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Text != "" {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(parts, " ")
}
