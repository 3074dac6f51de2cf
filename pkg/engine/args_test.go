package engine

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fmpfmp/mediaforge/pkg/media"
)

func TestConvertArgs(t *testing.T) {
	args, err := convertArgs("/in.avi", "/out.mp4", media.ConvertOptions{
		Type:         media.TypeMP4,
		Speed:        media.SpeedFast,
		Size:         media.SizeHD720,
		AudioQuality: media.AudioQualityHD,
	})
	if err != nil {
		t.Fatalf("convertArgs failed: %v", err)
	}

	joined := strings.Join(args, " ")
	for _, fragment := range []string{
		"-i /in.avi",
		"-c:v libx264",
		"-preset fast",
		"-s hd720",
		"-b:a 192k",
		"-threads 1",
		"-y /out.mp4",
	} {
		if !strings.Contains(joined, fragment) {
			t.Errorf("missing fragment %q in %q", fragment, joined)
		}
	}

	if args[len(args)-1] != "/out.mp4" {
		t.Errorf("output path must be last, got %v", args)
	}
}

func TestConvertArgs_Multithread(t *testing.T) {
	args, err := convertArgs("/in.avi", "/out.mp4", media.ConvertOptions{
		Type:        media.TypeMP4,
		Multithread: true,
	})
	if err != nil {
		t.Fatalf("convertArgs failed: %v", err)
	}

	joined := strings.Join(args, " ")
	if strings.Contains(joined, "-threads 1 ") || strings.HasSuffix(joined, "-threads 1") {
		t.Errorf("multithread conversion pinned to one thread: %q", joined)
	}
	if !strings.Contains(joined, "-threads ") {
		t.Errorf("missing -threads fragment: %q", joined)
	}
}

func TestConvertArgs_InvalidKnobs(t *testing.T) {
	if _, err := convertArgs("/in", "/out", media.ConvertOptions{Type: "wmv"}); !errors.Is(err, media.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for type, got %v", err)
	}
	if _, err := convertArgs("/in", "/out", media.ConvertOptions{Type: media.TypeMP4, Speed: "warp"}); !errors.Is(err, media.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for speed, got %v", err)
	}
}

func TestSnapshotArgs(t *testing.T) {
	args, err := snapshotArgs("/in.mp4", "/out.png", media.SizeNone, 0)
	if err != nil {
		t.Fatalf("snapshotArgs failed: %v", err)
	}

	joined := strings.Join(args, " ")
	for _, fragment := range []string{"-ss 00:00:00.000", "-i /in.mp4", "-vframes 1", "-f image2"} {
		if !strings.Contains(joined, fragment) {
			t.Errorf("missing fragment %q in %q", fragment, joined)
		}
	}

	args, err = snapshotArgs("/in.mp4", "/out.png", media.SizeHD480, 2500*time.Millisecond)
	if err != nil {
		t.Fatalf("snapshotArgs failed: %v", err)
	}
	joined = strings.Join(args, " ")
	if !strings.Contains(joined, "-ss 00:00:02.500") || !strings.Contains(joined, "-s hd480") {
		t.Errorf("capture time or size missing: %q", joined)
	}
}

func TestJoinArgs_PreservesOrder(t *testing.T) {
	args, err := joinArgs("/out.mp4", []string{"/a.mp4", "/b.mp4", "/c.mp4"})
	if err != nil {
		t.Fatalf("joinArgs failed: %v", err)
	}

	joined := strings.Join(args, " ")
	ia := strings.Index(joined, "/a.mp4")
	ib := strings.Index(joined, "/b.mp4")
	ic := strings.Index(joined, "/c.mp4")
	if ia < 0 || ib < 0 || ic < 0 || !(ia < ib && ib < ic) {
		t.Fatalf("input order not preserved: %q", joined)
	}

	if !strings.Contains(joined, "concat=n=3:v=1:a=1") {
		t.Errorf("concat filter missing or wrong input count: %q", joined)
	}
}

func TestJoinArgs_TooFewInputs(t *testing.T) {
	if _, err := joinArgs("/out.mp4", []string{"/a.mp4"}); !errors.Is(err, media.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestExtractArgs(t *testing.T) {
	video := strings.Join(extractVideoArgs("/in.mp4", "/out.mp4"), " ")
	if !strings.Contains(video, "-an") || !strings.Contains(video, "-c:v copy") {
		t.Errorf("unexpected video extraction args: %q", video)
	}

	audio := strings.Join(extractAudioArgs("/in.mp4", "/out.mp3"), " ")
	if !strings.Contains(audio, "-vn") {
		t.Errorf("unexpected audio extraction args: %q", audio)
	}
}

func TestAddAudioArgs(t *testing.T) {
	joined := strings.Join(addAudioArgs("/v.mp4", "/a.mp3", "/out.mp4"), " ")
	for _, fragment := range []string{"-i /v.mp4", "-i /a.mp3", "-map 0:v:0", "-map 1:a:0", "-c:v copy"} {
		if !strings.Contains(joined, fragment) {
			t.Errorf("missing fragment %q in %q", fragment, joined)
		}
	}
}
