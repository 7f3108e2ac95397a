// Package streamtest provides deterministic test fixtures for exercising
// the engine against origin servers with controllable behavior: synthetic
// byte patterns, a plain static file server, and a pausable/cuttable
// range server.
package streamtest

import (
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
)

// TestData returns n bytes of a deterministic, easily-verified pattern:
// little-endian uint32 counters repeating every 4 bytes.
func TestData(n uint32) []byte {
	out := make([]byte, n)
	var i uint32
	for off := uint32(0); off < n; off += 4 {
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, i)
		i += 4
		end := off + 4
		if end > n {
			end = n
		}
		copy(out[off:end], buf[:end-off])
	}
	return out
}

// TestDataRange returns the [start,end) slice of the same deterministic
// pattern, built by slicing TestData(end).
func TestDataRange(start, end uint32) []byte {
	if end < start {
		end = start
	}
	full := TestData(end)
	return full[start:end]
}

// GenFilePath returns a path in the OS temp dir suitable for a disk
// backend under test; it does not create the file.
func GenFilePath() string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 8)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return filepath.Join(os.TempDir(), "rangestream_test_"+string(b))
}
