package store

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func tempDiskPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "stream.data")
}

func TestDisk_WriteReadRoundtrip(t *testing.T) {
	path := tempDiskPath(t)
	d, err := OpenDisk(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	n, err := d.WriteAt([]byte("hello"), 0)
	if err != nil || n != 5 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	buf := make([]byte, 5)
	if got := d.ReadAt(buf, 0); got != 5 || !bytes.Equal(buf, []byte("hello")) {
		t.Fatalf("got %q (%d)", buf, got)
	}
}

func TestDisk_RecoversProgressAcrossReopen(t *testing.T) {
	path := tempDiskPath(t)
	d, err := OpenDisk(path, false)
	if err != nil {
		t.Fatal(err)
	}
	d.WriteAt([]byte("0123456789"), 0)
	d.Close()

	if _, err := os.Stat(path + progressSuffix); err != nil {
		t.Fatalf("expected progress sidecar, got %v", err)
	}

	d2, err := OpenDisk(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer d2.Close()

	rs := d2.Ranges().Ranges()
	if len(rs) != 1 || rs[0].Start != 0 || rs[0].End != 10 {
		t.Fatalf("expected recovered range [0,10), got %v", rs)
	}

	n, err := d2.WriteAt([]byte("x"), 10)
	if err != nil || n != 1 {
		t.Fatalf("expected append to continue at recovered writePos, n=%d err=%v", n, err)
	}
}

func TestDisk_RestartDiscardsProgress(t *testing.T) {
	path := tempDiskPath(t)
	d, err := OpenDisk(path, false)
	if err != nil {
		t.Fatal(err)
	}
	d.WriteAt([]byte("0123456789"), 0)
	d.Close()

	d2, err := OpenDisk(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer d2.Close()

	if rs := d2.Ranges().Ranges(); len(rs) != 0 {
		t.Fatalf("expected empty ranges after restart, got %v", rs)
	}
	n, err := d2.WriteAt([]byte("y"), 0)
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestDisk_NSupportedRangesBounded(t *testing.T) {
	path := tempDiskPath(t)
	d, err := OpenDisk(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if d.NSupportedRanges() <= 0 {
		t.Fatal("expected a positive finite bound")
	}
}
