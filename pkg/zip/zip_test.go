package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
	"time"
)

func TestArchiveRoundTrip(t *testing.T) {
	mod := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	raw, err := Archive([]Entry{
		{Name: "a.png", Modified: mod, Data: []byte("first")},
		{Name: "b.jpg", Modified: mod, Data: []byte("second")},
	})
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("files = %d", len(zr.File))
	}
	f := zr.File[1]
	if f.Name != "b.jpg" || f.Method != zip.Store {
		t.Fatalf("unexpected header: %+v", f.FileHeader)
	}
	rc, err := f.Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "second" {
		t.Fatalf("data = %q", data)
	}
}

func TestArchiveEmpty(t *testing.T) {
	raw, err := Archive(nil)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if _, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw))); err != nil {
		t.Fatalf("empty archive unreadable: %v", err)
	}
}
