package engine_test

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"rangestream/internal/engine"
	"rangestream/internal/streamtest"
)

func TestStreamBuilderRequiresBackend(t *testing.T) {
	mgr, _ := engine.NewManager(engine.ManagerOptions{})
	_, err := mgr.NewStream("http://example.invalid/x").Build(context.Background())
	if !errors.Is(err, engine.ErrNoBackendSelected) {
		t.Fatalf("Build() = %v, want ErrNoBackendSelected", err)
	}
}

func TestStreamBuilderToDisk(t *testing.T) {
	const size = 4_000
	srv := streamtest.StaticFileServer(size)
	defer srv.Close()

	path := streamtest.GenFilePath()
	defer os.Remove(path)
	defer os.Remove(path + ".progress")

	mgr, errCh := engine.NewManager(engine.ManagerOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle, err := mgr.NewStream(srv.URL+"/stream_test").
		ToDisk(path).
		WithPrefetch(0).
		Build(ctx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	reader, err := handle.TryGetReader()
	if err != nil {
		t.Fatalf("TryGetReader: %v", err)
	}
	defer reader.Close()

	buf := make([]byte, 512)
	for {
		select {
		case streamErr := <-errCh:
			t.Fatalf("unexpected stream error: %v", streamErr.Err)
		default:
		}
		_, rerr := reader.Read(buf)
		if errors.Is(rerr, io.EOF) {
			return
		}
		if rerr != nil {
			t.Fatalf("Read: %v", rerr)
		}
	}
}
