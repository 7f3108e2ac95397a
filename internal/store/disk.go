package store

import (
	"os"
	"sync"

	"rangestream/internal/rangeset"
)

// progressSuffix names the sidecar file recording durably written ranges.
const progressSuffix = ".progress"

// Disk is a file-backed, unbounded store. Appends are written at their
// absolute offset via WriteAt on the open file; the sidecar .progress
// file is rewritten after every accepted write, so a restart can
// resume without re-downloading already-durable bytes.
type Disk struct {
	mu           sync.Mutex
	f            *os.File
	progressPath string
	ranges       rangeset.Set
	writePos     uint64
	started      bool
}

// OpenDisk opens (creating if absent) the data file at path and its
// sibling .progress file, recovering any previously durable ranges. If
// restart is true, any previously recorded progress is discarded and the
// file is truncated, matching a caller-requested fresh download.
func OpenDisk(path string, restart bool) (*Disk, error) {
	flags := os.O_RDWR | os.O_CREATE
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, err
	}
	progressPath := path + progressSuffix

	d := &Disk{f: f, progressPath: progressPath}
	if restart {
		if err := f.Truncate(0); err != nil {
			f.Close()
			return nil, err
		}
		_ = os.Remove(progressPath)
		return d, nil
	}

	loaded, err := loadProgress(progressPath)
	if err != nil {
		f.Close()
		return nil, err
	}
	for _, r := range loaded {
		d.ranges.Add(r)
	}
	if last, ok := d.ranges.Last(); ok {
		d.writePos = last.End
		d.started = true
	}
	return d, nil
}

func (d *Disk) WriteAt(buf []byte, pos uint64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		d.writePos = pos
		d.started = true
	}
	if pos != d.writePos {
		return 0, ErrSeekInProgress
	}
	if len(buf) == 0 {
		return 0, nil
	}

	n, err := d.f.WriteAt(buf, int64(pos))
	if n > 0 {
		d.ranges.Add(rangeset.Range{Start: pos, End: pos + uint64(n)})
		d.writePos += uint64(n)
		if saveErr := saveProgress(d.progressPath, d.ranges.Ranges()); saveErr != nil && err == nil {
			err = saveErr
		}
	}
	return n, err
}

func (d *Disk) ReadAt(buf []byte, pos uint64) int {
	d.mu.Lock()
	covering, ok := d.ranges.Covering(pos)
	d.mu.Unlock()
	if !ok {
		return 0
	}
	avail := covering.End - pos
	if uint64(len(buf)) > avail {
		buf = buf[:avail]
	}
	n, err := d.f.ReadAt(buf, int64(pos))
	if err != nil && n == 0 {
		return 0
	}
	return n
}

func (d *Disk) Ranges() rangeset.Set {
	d.mu.Lock()
	defer d.mu.Unlock()
	var s rangeset.Set
	for _, r := range d.ranges.Ranges() {
		s.Add(r)
	}
	return s
}

func (d *Disk) GaplessFromTill(pos, end uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ranges.GaplessFromTill(pos, end)
}

func (d *Disk) WriterJump(to uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writePos = to
	d.started = true
}

// NSupportedRanges bounds how many disjoint ranges migration logic will
// copy onto disk; ranges beyond the bound are not copied. Disk seeks are cheap
// relative to memory copies but not free, so this is generous yet finite.
func (d *Disk) NSupportedRanges() int { return 4096 }

func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}
