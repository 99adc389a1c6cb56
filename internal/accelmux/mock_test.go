package accelmux

import (
	"context"
	"errors"
	"math"
	"os"
	"sync"
	"testing"
	"time"
)

func TestMockAccelMux_GeneratesParsableSamples(t *testing.T) {
	mux := NewMockAccelMux(50)
	t.Cleanup(func() {
		mux.Close()
		if f, ok := mux.port.WriteCloser.(*os.File); ok {
			os.Remove(f.Name())
		}
	})

	_, ch := mux.Subscribe()

	var mu sync.Mutex
	var lines []string
	go func() {
		for line := range ch {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	// The generator emits a batch every 100ms; wait for a few batches.
	deadline := time.After(3 * time.Second)
	for {
		mu.Lock()
		n := len(lines)
		mu.Unlock()
		if n >= 5 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("only received %d lines from mock generator", n)
		case <-time.After(20 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for _, line := range lines[:5] {
		if kind := ClassifyLine(line); kind != LineKindSample {
			t.Errorf("mock line %q classified as %q, want sample", line, kind)
			continue
		}
		triple, err := ParseSampleLine(line)
		if err != nil {
			t.Errorf("mock line %q failed to parse: %v", line, err)
			continue
		}
		if math.Abs(triple.X) > 0.0013 {
			t.Errorf("x amplitude %v exceeds the 25Hz tone envelope", triple.X)
		}
		if math.Abs(triple.Y) > 0.0008 {
			t.Errorf("y amplitude %v exceeds the 50Hz tone envelope", triple.Y)
		}
		if triple.Z < 0.999 || triple.Z > 1.001 {
			t.Errorf("z = %v, want gravity near 1g", triple.Z)
		}
	}
}

func TestMockAccelMux_CommandsLandInTempFile(t *testing.T) {
	mux := NewMockAccelMux(50)
	f, ok := mux.port.WriteCloser.(*os.File)
	if !ok {
		t.Fatal("mock port should write commands to a temp file")
	}
	t.Cleanup(func() {
		mux.Close()
		os.Remove(f.Name())
	})

	if err := mux.SendCommand("S0"); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}

	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("read temp file: %v", err)
	}
	if string(data) != "S0\n" {
		t.Errorf("temp file contents = %q, want %q", data, "S0\n")
	}
}

func TestMockAccelMux_CloseStopsGenerator(t *testing.T) {
	mux := NewMockAccelMux(50)
	f, _ := mux.port.WriteCloser.(*os.File)
	t.Cleanup(func() {
		if f != nil {
			os.Remove(f.Name())
		}
	})

	if err := mux.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// After close the pipe is torn down; give the generator a few ticks to
	// observe the write error and exit. Reading the port should not block
	// forever once the pipe is closed.
	done := make(chan struct{})
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := mux.port.Read(buf); err != nil {
				close(done)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("reads did not fail after Close")
	}
}

func TestTestablePort_ReadWrite(t *testing.T) {
	port := NewTestablePort()

	port.AddReadData([]byte("hello"))
	buf := make([]byte, 16)
	n, err := port.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("Read = %q, want %q", buf[:n], "hello")
	}
	if port.ReadCalls != 1 {
		t.Errorf("ReadCalls = %d, want 1", port.ReadCalls)
	}

	if _, err := port.Write([]byte("S1\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if string(port.GetWrittenData()) != "S1\n" {
		t.Errorf("written data = %q, want %q", port.GetWrittenData(), "S1\n")
	}
	if port.WriteCalls != 1 {
		t.Errorf("WriteCalls = %d, want 1", port.WriteCalls)
	}
}

func TestTestablePort_ErrorsAreOneShot(t *testing.T) {
	port := NewTestablePort()

	port.ReadError = errors.New("read boom")
	if _, err := port.Read(make([]byte, 4)); err == nil {
		t.Error("expected injected read error")
	}
	port.AddReadData([]byte("ok"))
	if _, err := port.Read(make([]byte, 4)); err != nil {
		t.Errorf("read error should be one-shot, got: %v", err)
	}

	port.WriteError = errors.New("write boom")
	if _, err := port.Write([]byte("x")); err == nil {
		t.Error("expected injected write error")
	}
	if _, err := port.Write([]byte("x")); err != nil {
		t.Errorf("write error should be one-shot, got: %v", err)
	}
}

func TestTestablePort_ClosedPortErrors(t *testing.T) {
	port := NewTestablePort()
	if err := port.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !port.Closed {
		t.Error("Closed flag not set")
	}
	if _, err := port.Read(make([]byte, 4)); err == nil {
		t.Error("expected error reading closed port")
	}
	if _, err := port.Write([]byte("x")); err == nil {
		t.Error("expected error writing closed port")
	}
}

func TestTestablePort_BlockingRead(t *testing.T) {
	port := NewTestablePort()
	port.BlockReads = true

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 16)
		n, err := port.Read(buf)
		if err != nil {
			got <- "error: " + err.Error()
			return
		}
		got <- string(buf[:n])
	}()

	// Reader should be blocked until data arrives.
	select {
	case v := <-got:
		t.Fatalf("Read returned %q before data was added", v)
	case <-time.After(50 * time.Millisecond):
	}

	port.AddReadData([]byte("data"))

	select {
	case v := <-got:
		if v != "data" {
			t.Errorf("Read = %q, want %q", v, "data")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not unblock after AddReadData")
	}
}

func TestTestablePort_CloseWakesBlockedReader(t *testing.T) {
	port := NewTestablePort()
	port.BlockReads = true

	done := make(chan error, 1)
	go func() {
		_, err := port.Read(make([]byte, 16))
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	port.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected error from read unblocked by Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not wake blocked reader")
	}
}

func TestTestablePort_Reset(t *testing.T) {
	port := NewTestablePort()
	port.AddReadData([]byte("stale"))
	port.Write([]byte("stale"))
	port.Close()

	port.Reset()

	if port.Closed {
		t.Error("Reset should clear Closed")
	}
	if port.ReadBuffer.Len() != 0 || port.WriteBuffer.Len() != 0 {
		t.Error("Reset should clear buffers")
	}
	if port.ReadCalls != 0 || port.WriteCalls != 0 {
		t.Error("Reset should clear call counts")
	}
}

func TestTestablePort_SetReadTimeout(t *testing.T) {
	port := NewTestablePort()
	if err := port.SetReadTimeout(time.Second); err != nil {
		t.Fatalf("SetReadTimeout failed: %v", err)
	}
	if port.ReadTimeout != time.Second {
		t.Errorf("ReadTimeout = %v, want 1s", port.ReadTimeout)
	}
}
