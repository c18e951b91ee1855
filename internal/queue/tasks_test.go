package queue

import (
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name      string
		payload   string
		wantVideo string
		wantErr   bool
	}{
		{
			name:      "valid",
			payload:   `{"videoId":"v1","courseId":"c1","adminId":"a1","gcsUri":"gs://vod-source/uploads/a1/c1/v1/v1-lesson.mp4","timestamp":"2026-01-02T15:04:05Z"}`,
			wantVideo: "v1",
		},
		{
			name:    "missing videoId",
			payload: `{"gcsUri":"gs://vod-source/key"}`,
			wantErr: true,
		},
		{
			name:    "missing gcsUri",
			payload: `{"videoId":"v1"}`,
			wantErr: true,
		},
		{
			name:    "blank gcsUri",
			payload: `{"videoId":"v1","gcsUri":"  "}`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			payload: `{"videoId":`,
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Decode([]byte(tc.payload))
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				var malformed *MalformedJobError
				if !errors.As(err, &malformed) {
					t.Fatalf("expected MalformedJobError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.VideoID != tc.wantVideo {
				t.Errorf("VideoID = %q, want %q", p.VideoID, tc.wantVideo)
			}
		})
	}
}

func TestSourceObjectKey(t *testing.T) {
	cases := []struct {
		name    string
		uri     string
		bucket  string
		want    string
		wantErr bool
	}{
		{name: "gs uri", uri: "gs://vod-source/uploads/a/c/v/v-file.mp4", bucket: "vod-source", want: "uploads/a/c/v/v-file.mp4"},
		{name: "s3 uri", uri: "s3://vod-source/uploads/x.mp4", bucket: "vod-source", want: "uploads/x.mp4"},
		{name: "bare key", uri: "uploads/a/c/v/v-file.mp4", bucket: "vod-source", want: "uploads/a/c/v/v-file.mp4"},
		{name: "bucket mismatch", uri: "gs://other/key.mp4", bucket: "vod-source", wantErr: true},
		{name: "no key", uri: "gs://vod-source", bucket: "vod-source", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := EncodePayload{VideoID: "v", GCSURI: tc.uri}
			got, err := p.SourceObjectKey(tc.bucket)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("key = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRemotePrefix(t *testing.T) {
	p := EncodePayload{VideoID: "v1", CourseID: "c1", AdminID: "a1"}
	if got, want := p.RemotePrefix(), "assets/a1/c1/v1"; got != want {
		t.Errorf("RemotePrefix = %q, want %q", got, want)
	}
}
