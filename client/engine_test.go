package client

import (
	"net"
	"strconv"
	"testing"

	"github.com/netfsd/netfsd/naming"
	"github.com/netfsd/netfsd/storage"
)

// startCluster brings up a naming server and one storage server for
// integration-testing the client engine against real wire traffic.
func startCluster(t *testing.T) (nsHost string, nsPort int) {
	t.Helper()

	ns, err := naming.NewServer(naming.ServerOptions{Port: 0})
	if err != nil {
		t.Fatalf("naming.NewServer: %v", err)
	}
	if err := ns.Listen(); err != nil {
		t.Fatalf("naming Listen: %v", err)
	}
	t.Cleanup(func() { ns.Stop() })

	host, portStr, err := net.SplitHostPort(ns.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Atoi: %v", err)
	}

	ss, err := storage.NewServer(storage.ServerOptions{
		Port:    0,
		DataDir: t.TempDir(),
		NSHost:  host,
		NSPort:  port,
	})
	if err != nil {
		t.Fatalf("storage.NewServer: %v", err)
	}
	if err := ss.Listen(); err != nil {
		t.Fatalf("storage Listen: %v", err)
	}
	t.Cleanup(func() { ss.Stop() })

	return host, port
}

func newTestEngine(t *testing.T, nsHost string, nsPort int) *Engine {
	t.Helper()
	e, err := NewEngine(Config{NSHost: nsHost, NSPort: nsPort})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestEngineCreateWriteReadRoundTrip(t *testing.T) {
	nsHost, nsPort := startCluster(t)
	e := newTestEngine(t, nsHost, nsPort)

	if err := e.Create("greeting.txt"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.Write("greeting.txt", 0, []byte("hello, netfsd")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := e.Read("greeting.txt", 0, 5)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("Read = %q, want %q", got, "hello")
	}
}

func TestEngineReadServesFromCacheOnRepeat(t *testing.T) {
	nsHost, nsPort := startCluster(t)
	e := newTestEngine(t, nsHost, nsPort)

	if err := e.Create("cached.txt"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.Write("cached.txt", 0, []byte("abcdef")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := e.Read("cached.txt", 0, 3); err != nil {
		t.Fatalf("first Read: %v", err)
	}
	if e.cache.Len() != 1 {
		t.Fatalf("expected the first read to populate the cache, got %d entries", e.cache.Len())
	}

	got, err := e.Read("cached.txt", 0, 3)
	if err != nil {
		t.Fatalf("second Read: %v", err)
	}
	if string(got) != "abc" {
		t.Fatalf("Read = %q, want %q", got, "abc")
	}
}

func TestEngineWriteInvalidatesCache(t *testing.T) {
	nsHost, nsPort := startCluster(t)
	e := newTestEngine(t, nsHost, nsPort)

	if err := e.Create("f.txt"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.Write("f.txt", 0, []byte("version1")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := e.Read("f.txt", 0, 8); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := e.Write("f.txt", 0, []byte("version2")); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	got, err := e.Read("f.txt", 0, 8)
	if err != nil {
		t.Fatalf("Read after overwrite: %v", err)
	}
	if string(got) != "version2" {
		t.Fatalf("Read after overwrite = %q, want %q (stale cache not invalidated)", got, "version2")
	}
}

func TestEngineReadMissingFileReturnsError(t *testing.T) {
	nsHost, nsPort := startCluster(t)
	e := newTestEngine(t, nsHost, nsPort)

	if _, err := e.Read("missing.txt", 0, 1); err == nil {
		t.Fatal("expected an error reading an unregistered path")
	}
}
