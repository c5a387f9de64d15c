package extract

import (
	"context"
	"errors"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		filename string
		want     string
	}{
		{"paper.pdf", FormatPDF},
		{"PAPER.PDF", FormatPDF},
		{"notes.txt", FormatText},
		{"readme.md", FormatText},
		{"transcript.text", FormatText},
		{"image.png", ""},
		{"archive.tar.gz", ""},
		{"noextension", ""},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.filename); got != tt.want {
			t.Errorf("DetectFormat(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}

func TestFromText(t *testing.T) {
	t.Parallel()

	res, err := FromText([]byte("replicated logs drive state machine replication."))
	if err != nil {
		t.Fatalf("FromText: %v", err)
	}
	if res.Text != "replicated logs drive state machine replication." {
		t.Errorf("text altered: %q", res.Text)
	}
	if len(res.Pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(res.Pages))
	}
	p := res.Pages[0]
	if p.Number != 1 || p.Offset != 0 || p.Confidence != 1.0 {
		t.Errorf("page table: got %+v", p)
	}
}

func TestFromText_EmptyFails(t *testing.T) {
	t.Parallel()

	for _, in := range [][]byte{nil, []byte(""), []byte("  \n\t ")} {
		_, err := FromText(in)
		var xe *ExtractionError
		if !errors.As(err, &xe) {
			t.Errorf("FromText(%q): got %v, want ExtractionError", in, err)
		}
	}
}

func TestFromPDF_CorruptFails(t *testing.T) {
	t.Parallel()

	_, err := FromPDF(context.Background(), []byte("this is not a pdf"))
	var xe *ExtractionError
	if !errors.As(err, &xe) {
		t.Fatalf("got %v, want ExtractionError", err)
	}
	if xe.Format != FormatPDF {
		t.Errorf("format: got %q, want pdf", xe.Format)
	}

	if _, err := FromPDF(context.Background(), nil); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestFromPDF_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FromPDF(ctx, []byte("%PDF-1.4 placeholder"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	// Cancellation is retryable from the pipeline's point of view, so it
	// must not be classified as an unreadable document.
	var xe *ExtractionError
	if errors.As(err, &xe) {
		t.Error("context error must not be wrapped in ExtractionError")
	}
}

func TestFromBytes_Dispatch(t *testing.T) {
	t.Parallel()

	res, err := FromBytes(context.Background(), []byte("plain content"), "notes.md")
	if err != nil {
		t.Fatalf("FromBytes text: %v", err)
	}
	if res.Text != "plain content" {
		t.Errorf("text: got %q", res.Text)
	}

	_, err = FromBytes(context.Background(), []byte("whatever"), "slide.pptx")
	var xe *ExtractionError
	if !errors.As(err, &xe) {
		t.Fatalf("unsupported format: got %v, want ExtractionError", err)
	}
	if xe.Format != "pptx" {
		t.Errorf("format: got %q, want pptx", xe.Format)
	}
}
