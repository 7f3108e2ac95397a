package store

import (
	"encoding/binary"
	"os"

	"rangestream/internal/rangeset"
)

// progressEntrySize is the byte size of one (start,end) uint64 LE pair.
const progressEntrySize = 16

// loadProgress reads a .progress sidecar file, returning the durable
// ranges it records. A partial trailing section shorter than
// progressEntrySize is always discarded.
func loadProgress(path string) ([]rangeset.Range, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	usable := len(data) - (len(data) % progressEntrySize)
	ranges := make([]rangeset.Range, 0, usable/progressEntrySize)
	for i := 0; i < usable; i += progressEntrySize {
		start := binary.LittleEndian.Uint64(data[i : i+8])
		end := binary.LittleEndian.Uint64(data[i+8 : i+16])
		ranges = append(ranges, rangeset.Range{Start: start, End: end})
	}
	return ranges, nil
}

// saveProgress rewrites the .progress sidecar file from scratch with the
// given ranges.
func saveProgress(path string, ranges []rangeset.Range) error {
	buf := make([]byte, 0, len(ranges)*progressEntrySize)
	for _, r := range ranges {
		var entry [progressEntrySize]byte
		binary.LittleEndian.PutUint64(entry[0:8], r.Start)
		binary.LittleEndian.PutUint64(entry[8:16], r.End)
		buf = append(buf, entry[:]...)
	}
	return os.WriteFile(path, buf, 0o644)
}
