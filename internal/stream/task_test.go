package stream_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"rangestream/internal/stream"
	"rangestream/internal/store"
	"rangestream/internal/streamtest"
)

// A capacity-limited backend only accepts as many bytes as it has room
// for per write; drainBody must retry the unwritten remainder rather
// than silently drop it once the reader frees space.
func TestTaskDrainBodyRespectsLimitedCapacity(t *testing.T) {
	const size = 20_000
	srv := streamtest.StaticFileServer(size)
	defer srv.Close()

	backend := store.NewLimitedMem(1024)
	st := store.NewSwitchable(backend)
	task := stream.New(1, srv.URL+"/stream_test", st, stream.Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- task.Run(ctx) }()

	task.Seek(0)

	buf := make([]byte, 4096)
	var got bytes.Buffer
	deadline := time.After(8 * time.Second)
	for got.Len() < size {
		select {
		case <-deadline:
			t.Fatalf("timed out with %d/%d bytes read", got.Len(), size)
		default:
		}
		n := st.ReadAt(buf, uint64(got.Len()))
		if n == 0 {
			st.SetLastReadPos(uint64(got.Len()))
			time.Sleep(5 * time.Millisecond)
			continue
		}
		got.Write(buf[:n])
		st.SetLastReadPos(uint64(got.Len()))
	}

	want := streamtest.TestData(size)
	if !bytes.Equal(got.Bytes(), want) {
		t.Fatalf("drained bytes mismatch against a %d-byte capacity-limited backend", 1024)
	}

	cancel()
	<-done
}
