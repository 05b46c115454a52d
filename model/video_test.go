package model

import (
	"errors"
	"testing"
)

func TestVideoValidateSourceReference(t *testing.T) {
	cases := []struct {
		name  string
		video Video
		valid bool
	}{
		{"youtube embed", Video{SourceKind: SourceKindEmbedYouTube, EmbedID: "abc123"}, true},
		{"loom embed", Video{SourceKind: SourceKindEmbedLoom, EmbedID: "abc123"}, true},
		{"vimeo embed", Video{SourceKind: SourceKindEmbedVimeo, EmbedID: "abc123"}, true},
		{"managed cdn", Video{SourceKind: SourceKindManagedCDN, MuxAssetID: "a1", MuxPlaybackID: "p1"}, true},
		{"uploaded file", Video{SourceKind: SourceKindUploadedFile, StoragePath: "uploads/1/lec.mp4"}, true},

		{"embed without id", Video{SourceKind: SourceKindEmbedYouTube}, false},
		{"cdn missing playback id", Video{SourceKind: SourceKindManagedCDN, MuxAssetID: "a1"}, false},
		{"upload with embed ref", Video{SourceKind: SourceKindUploadedFile, EmbedID: "abc"}, false},
		{"two reference groups", Video{SourceKind: SourceKindEmbedVimeo, EmbedID: "v1", StoragePath: "also"}, false},
		{"unknown kind", Video{SourceKind: "broadcast", EmbedID: "x"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.video.Validate()
			if tc.valid && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tc.valid && err == nil {
				t.Error("expected validation error")
			}
		})
	}

	err := (&Video{SourceKind: SourceKindEmbedYouTube}).Validate()
	if !errors.Is(err, ErrInvalidSourceReference) {
		t.Errorf("expected ErrInvalidSourceReference, got %v", err)
	}
}

func TestVideoStatusHelpers(t *testing.T) {
	if !VideoStatusCompleted.IsTerminal() || !VideoStatusFailed.IsTerminal() {
		t.Error("completed and failed must be terminal")
	}
	if VideoStatusPending.IsTerminal() {
		t.Error("pending is not terminal")
	}

	for _, status := range []VideoStatus{
		VideoStatusResolving, VideoStatusExtracting, VideoStatusRetrying,
		VideoStatusChunking, VideoStatusEmbedding,
	} {
		if !status.IsInFlight() {
			t.Errorf("%s should be in flight", status)
		}
	}
	if VideoStatusPending.IsInFlight() || VideoStatusCompleted.IsInFlight() {
		t.Error("pending and completed are not in flight")
	}
}
