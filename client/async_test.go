package client

import (
	"context"
	"testing"
	"time"
)

func TestAsyncEngineCreateWriteReadDeleteRoundTrip(t *testing.T) {
	nsHost, nsPort := startCluster(t)
	e := newTestEngine(t, nsHost, nsPort)
	a := NewAsyncEngine(e)
	ctx := context.Background()

	if err := <-a.CreateAsync(ctx, "async.txt"); err != nil {
		t.Fatalf("CreateAsync: %v", err)
	}
	if err := <-a.WriteAsync(ctx, "async.txt", 0, []byte("async hello")); err != nil {
		t.Fatalf("WriteAsync: %v", err)
	}

	res := <-a.ReadAsync(ctx, "async.txt", 0, 5)
	if res.Err != nil {
		t.Fatalf("ReadAsync: %v", res.Err)
	}
	if string(res.Data) != "async" {
		t.Fatalf("ReadAsync data = %q, want %q", res.Data, "async")
	}

	info := <-a.GetFileInfoAsync(ctx, "async.txt")
	if info.Err != nil {
		t.Fatalf("GetFileInfoAsync: %v", info.Err)
	}
	if info.Info.FileSize != uint64(len("async hello")) {
		t.Fatalf("GetFileInfoAsync size = %d, want %d", info.Info.FileSize, len("async hello"))
	}

	if err := <-a.DeleteAsync(ctx, "async.txt"); err != nil {
		t.Fatalf("DeleteAsync: %v", err)
	}
}

func TestAsyncEngineStreamAsyncDeliversChunks(t *testing.T) {
	nsHost, nsPort := startCluster(t)
	e := newTestEngine(t, nsHost, nsPort)
	a := NewAsyncEngine(e)
	ctx := context.Background()

	if err := e.Create("stream.txt"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	payload := []byte("streamed payload bytes")
	if err := e.Write("stream.txt", 0, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var received []byte
	done := a.StreamAsync(ctx, "stream.txt", 0, 4, func(offset uint64, data []byte, isLast bool) error {
		received = append(received, data...)
		return nil
	})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("StreamAsync: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("StreamAsync did not complete in time")
	}

	if string(received) != string(payload) {
		t.Fatalf("streamed = %q, want %q", received, payload)
	}
}

func TestAsyncEngineSingleWorkerPoolCompletesQueuedWrites(t *testing.T) {
	nsHost, nsPort := startCluster(t)
	e := newTestEngine(t, nsHost, nsPort)
	e.config.Workers = 1
	a := NewAsyncEngine(e)
	ctx := context.Background()

	if err := e.Create("pool.txt"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first := a.WriteAsync(ctx, "pool.txt", 0, []byte("one"))
	second := a.WriteAsync(ctx, "pool.txt", 0, []byte("two"))

	if err := <-first; err != nil {
		t.Fatalf("first WriteAsync: %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("second WriteAsync: %v", err)
	}
}
