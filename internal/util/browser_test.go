package util

import (
	"net"
	"strconv"
	"testing"
)

func TestFindAvailablePort_SkipsBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	busy := ln.Addr().(*net.TCPAddr).Port
	port, err := FindAvailablePort("127.0.0.1", busy, 20)
	if err != nil {
		t.Fatalf("FindAvailablePort: %v", err)
	}
	if port == busy {
		t.Fatalf("returned busy port %d", busy)
	}

	probe, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		t.Fatalf("returned port %d is not listenable: %v", port, err)
	}
	probe.Close()
}

func TestFindAvailablePort_Exhausted(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	busy := ln.Addr().(*net.TCPAddr).Port
	if _, err := FindAvailablePort("127.0.0.1", busy, 1); err == nil {
		t.Fatal("expected error when the only candidate is busy")
	}
}
