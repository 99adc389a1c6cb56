package accelmux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestPort implements SamplePorter for testing AccelMux operations
type TestPort struct {
	readData    []byte
	readIndex   int
	writtenData bytes.Buffer
	writeErr    error
	closeErr    error
	closed      bool
	mu          sync.Mutex
}

func NewTestPort(data string) *TestPort {
	return &TestPort{
		readData: []byte(data),
	}
}

func (p *TestPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.EOF
	}
	if p.readIndex >= len(p.readData) {
		// Block until closed to simulate waiting for more data
		time.Sleep(10 * time.Millisecond)
		if p.closed {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := copy(buf, p.readData[p.readIndex:])
	p.readIndex += n
	return n, nil
}

func (p *TestPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.writtenData.Write(data)
}

func (p *TestPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.closeErr
}

func (p *TestPort) SetWriteError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

func (p *TestPort) WrittenData() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writtenData.String()
}

func TestNewAccelMux(t *testing.T) {
	port := NewTestPort("")
	mux := NewAccelMux(port, 1000)

	if mux == nil {
		t.Fatal("NewAccelMux returned nil")
	}
	if mux.port != port {
		t.Error("AccelMux port not set correctly")
	}
	if mux.sampleRate != 1000 {
		t.Errorf("AccelMux sample rate = %d, want 1000", mux.sampleRate)
	}
	if mux.subscribers == nil {
		t.Error("AccelMux subscribers map not initialized")
	}
}

func TestAccelMux_Subscribe(t *testing.T) {
	port := NewTestPort("")
	mux := NewAccelMux(port, 1000)

	id1, ch1 := mux.Subscribe()
	id2, ch2 := mux.Subscribe()

	if id1 == "" {
		t.Error("First subscription returned empty ID")
	}
	if id2 == "" {
		t.Error("Second subscription returned empty ID")
	}
	if id1 == id2 {
		t.Error("Subscription IDs should be unique")
	}
	if ch1 == nil {
		t.Error("First subscription returned nil channel")
	}
	if ch2 == nil {
		t.Error("Second subscription returned nil channel")
	}

	// Verify both are in subscribers map
	mux.subscriberMu.Lock()
	if len(mux.subscribers) != 2 {
		t.Errorf("Expected 2 subscribers, got %d", len(mux.subscribers))
	}
	mux.subscriberMu.Unlock()
}

func TestAccelMux_Subscribe_BufferAbsorbsBursts(t *testing.T) {
	port := NewTestPort("")
	mux := NewAccelMux(port, 1000)

	_, ch := mux.Subscribe()
	if cap(ch) != subscriberBuffer {
		t.Fatalf("subscriber channel capacity = %d, want %d", cap(ch), subscriberBuffer)
	}

	// A subscriber busy handling one line must not lose the lines that keep
	// arriving from the device in the meantime.
	for i := 0; i < 5; i++ {
		mux.publish(fmt.Sprintf("0.00%d000,0.000000,1.000000", i))
	}

	for i := 0; i < 5; i++ {
		select {
		case line := <-ch:
			if want := fmt.Sprintf("0.00%d000,0.000000,1.000000", i); line != want {
				t.Errorf("line %d = %q, want %q", i, line, want)
			}
		default:
			t.Fatalf("line %d missing from subscriber buffer", i)
		}
	}

	if got := mux.DroppedLines(); got != 0 {
		t.Errorf("DroppedLines = %d, want 0", got)
	}
}

func TestAccelMux_Publish_CountsDropsWhenBufferFull(t *testing.T) {
	port := NewTestPort("")
	mux := NewAccelMux(port, 1000)

	_, ch := mux.Subscribe()

	// Fill the subscriber's buffer and then some. Only the overflow is lost,
	// and every lost line is counted.
	for i := 0; i < subscriberBuffer+3; i++ {
		mux.publish("0.001000,-0.000500,0.998000")
	}

	if len(ch) != subscriberBuffer {
		t.Errorf("buffered lines = %d, want %d", len(ch), subscriberBuffer)
	}
	if got := mux.DroppedLines(); got != 3 {
		t.Errorf("DroppedLines = %d, want 3", got)
	}
}

func TestAccelMux_Unsubscribe(t *testing.T) {
	port := NewTestPort("")
	mux := NewAccelMux(port, 1000)

	id, ch := mux.Subscribe()

	// Start a goroutine to detect channel closure
	done := make(chan bool)
	go func() {
		_, ok := <-ch
		if ok {
			t.Error("Expected channel to be closed")
		}
		done <- true
	}()

	// Give goroutine time to start
	time.Sleep(10 * time.Millisecond)

	mux.Unsubscribe(id)

	select {
	case <-done:
		// Success
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for channel closure")
	}

	// Verify removed from map
	mux.subscriberMu.Lock()
	if len(mux.subscribers) != 0 {
		t.Errorf("Expected 0 subscribers, got %d", len(mux.subscribers))
	}
	mux.subscriberMu.Unlock()
}

func TestAccelMux_Unsubscribe_NonExistent(t *testing.T) {
	port := NewTestPort("")
	mux := NewAccelMux(port, 1000)

	// Should not panic
	mux.Unsubscribe("non-existent-id")
}

func TestAccelMux_SendCommand(t *testing.T) {
	port := NewTestPort("")
	mux := NewAccelMux(port, 1000)

	tests := []struct {
		name    string
		command string
	}{
		{"command without newline", "S0"},
		{"command with newline", "S1\n"},
		{"query command", "?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mux.SendCommand(tt.command)
			if err != nil {
				t.Errorf("SendCommand returned error: %v", err)
			}
		})
	}

	// Verify all commands were written newline-terminated
	written := port.WrittenData()
	if !strings.Contains(written, "S0\n") {
		t.Error("Expected S0 command to be written")
	}
	if !strings.Contains(written, "S1\n") {
		t.Error("Expected S1 command to be written")
	}
	if !strings.Contains(written, "?\n") {
		t.Error("Expected ? command to be written")
	}
}

func TestAccelMux_SendCommand_WriteError(t *testing.T) {
	port := NewTestPort("")
	mux := NewAccelMux(port, 1000)

	port.SetWriteError(errors.New("write failed"))

	err := mux.SendCommand("S1")
	if err == nil {
		t.Error("Expected error when write fails")
	}
}

func TestAccelMux_SendCommand_PartialWrite(t *testing.T) {
	port := &PartialWritePort{maxWrite: 1}
	mux := NewAccelMux(port, 1000)

	err := mux.SendCommand("S1")
	if !errors.Is(err, ErrWriteFailed) {
		t.Errorf("Expected ErrWriteFailed for partial write, got %v", err)
	}
}

// PartialWritePort is a test port that only writes a limited number of bytes
type PartialWritePort struct {
	maxWrite int
	written  []byte
	closed   bool
}

func (p *PartialWritePort) Read(buf []byte) (int, error) {
	return 0, io.EOF
}

func (p *PartialWritePort) Write(data []byte) (int, error) {
	if p.maxWrite > 0 && len(data) > p.maxWrite {
		p.written = append(p.written, data[:p.maxWrite]...)
		return p.maxWrite, nil
	}
	p.written = append(p.written, data...)
	return len(data), nil
}

func (p *PartialWritePort) Close() error {
	p.closed = true
	return nil
}

func TestAccelMux_Initialize(t *testing.T) {
	port := NewTestPort("")
	mux := NewAccelMux(port, 1000)

	err := mux.Initialize()
	if err != nil {
		t.Errorf("Initialize returned error: %v", err)
	}

	// Verify the bring-up commands were sent
	written := port.WrittenData()
	expectedCommands := []string{"C=", "F=1000", "OG", "S1"}
	for _, cmd := range expectedCommands {
		if !strings.Contains(written, cmd) {
			t.Errorf("Expected command %s to be written during initialization", cmd)
		}
	}
}

func TestAccelMux_Initialize_UsesConfiguredRate(t *testing.T) {
	port := NewTestPort("")
	mux := NewAccelMux(port, 250)

	if err := mux.Initialize(); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}

	if !strings.Contains(port.WrittenData(), "F=250\n") {
		t.Errorf("Expected F=250 in initialization, got %q", port.WrittenData())
	}
}

func TestAccelMux_Initialize_WriteError(t *testing.T) {
	port := NewTestPort("")
	mux := NewAccelMux(port, 1000)

	port.SetWriteError(errors.New("write failed"))

	err := mux.Initialize()
	if err == nil {
		t.Error("Expected error when write fails during initialization")
	}
}

func TestAccelMux_Close(t *testing.T) {
	port := NewTestPort("")
	mux := NewAccelMux(port, 1000)

	id1, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()

	// Start goroutines to detect channel closure
	done1 := make(chan bool)
	done2 := make(chan bool)

	go func() {
		_, ok := <-ch1
		if ok {
			t.Error("Expected channel 1 to be closed")
		}
		done1 <- true
	}()

	go func() {
		_, ok := <-ch2
		if ok {
			t.Error("Expected channel 2 to be closed")
		}
		done2 <- true
	}()

	// Give goroutines time to start
	time.Sleep(10 * time.Millisecond)

	err := mux.Close()
	if err != nil {
		t.Errorf("Close returned error: %v", err)
	}

	select {
	case <-done1:
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for channel 1 closure")
	}

	select {
	case <-done2:
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for channel 2 closure")
	}

	// Verify subscribers map is empty
	mux.subscriberMu.Lock()
	if len(mux.subscribers) != 0 {
		t.Errorf("Expected 0 subscribers after close, got %d", len(mux.subscribers))
	}
	mux.subscriberMu.Unlock()

	// Verify closing flag is set
	mux.closingMu.Lock()
	if !mux.closing {
		t.Error("Expected closing flag to be true after Close")
	}
	mux.closingMu.Unlock()

	// Unsubscribing after close should be safe
	mux.Unsubscribe(id1)
}

func TestAccelMux_Monitor_DeliversLines(t *testing.T) {
	port := NewTestablePort()
	port.BlockReads = true
	mux := NewAccelMux(port, 1000)

	_, ch := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- mux.Monitor(ctx)
	}()

	// Park a receiver before feeding the port so the non-blocking fan-out
	// finds it waiting.
	got := make(chan string, 1)
	go func() {
		got <- <-ch
	}()
	time.Sleep(10 * time.Millisecond)

	port.AddReadData([]byte("0.001000,-0.000500,0.998000\n"))

	select {
	case line := <-got:
		if line != "0.001000,-0.000500,0.998000" {
			t.Errorf("received line %q, want sample line", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for line delivery")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Logf("Monitor returned: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Monitor did not exit after cancel")
	}
}

func TestAccelMux_Monitor_ScanError(t *testing.T) {
	port := &ErrorReadPort{errAfter: 2}
	mux := NewAccelMux(port, 1000)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := mux.Monitor(ctx)
	// Should get either the read error or context timeout
	if err != nil {
		t.Logf("Monitor returned error (expected): %v", err)
	}
}

func TestAccelMux_Monitor_CloseDuringRead(t *testing.T) {
	port := NewTestPort("line1\nline2\nline3\nline4\n")
	mux := NewAccelMux(port, 1000)

	_, ch := mux.Subscribe()

	ctx := context.Background()

	// Start monitoring in background
	done := make(chan error, 1)
	go func() {
		done <- mux.Monitor(ctx)
	}()

	// Read a line to ensure monitor is running
	select {
	case <-ch:
		// Got a line
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for first line")
	}

	// Now close the mux
	if err := mux.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	// Monitor should exit
	select {
	case err := <-done:
		if err != nil {
			t.Logf("Monitor returned: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Monitor did not exit after Close")
	}
}

// ErrorReadPort simulates a port that returns an error after N reads
type ErrorReadPort struct {
	readCount int
	errAfter  int
	closed    bool
}

func (p *ErrorReadPort) Read(buf []byte) (int, error) {
	if p.closed {
		return 0, io.EOF
	}
	p.readCount++
	if p.readCount > p.errAfter {
		return 0, errors.New("simulated read error")
	}
	// Return a newline to simulate a line
	if len(buf) > 0 {
		buf[0] = '\n'
		return 1, nil
	}
	return 0, nil
}

func (p *ErrorReadPort) Write(data []byte) (int, error) {
	return len(data), nil
}

func (p *ErrorReadPort) Close() error {
	p.closed = true
	return nil
}

func TestAccelMux_AttachAdminRoutes_Registered(t *testing.T) {
	port := NewTestPort("")
	mux := NewAccelMux(port, 1000)

	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	// Debug routes are protected by tailscale auth; we only verify they are
	// registered (anything but 404).
	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/debug/send-command"},
		{http.MethodPost, "/debug/send-command-api"},
		{http.MethodGet, "/debug/tail"},
		{http.MethodGet, "/debug/tail.js"},
	}

	for _, rt := range routes {
		t.Run(rt.path, func(t *testing.T) {
			req := httptest.NewRequest(rt.method, rt.path, nil)
			w := httptest.NewRecorder()
			httpMux.ServeHTTP(w, req)

			if w.Code == http.StatusNotFound {
				t.Errorf("Route %s should be registered, got 404", rt.path)
			}
		})
	}
}

func TestRandomID(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := randomID()
		if len(id) != 16 { // 8 bytes hex encoded = 16 chars
			t.Errorf("Expected ID length 16, got %d", len(id))
		}
		if ids[id] {
			t.Errorf("Duplicate ID generated: %s", id)
		}
		ids[id] = true
	}
}

func TestErrWriteFailed(t *testing.T) {
	if ErrWriteFailed == nil {
		t.Error("ErrWriteFailed should not be nil")
	}
	if ErrWriteFailed.Error() == "" {
		t.Error("ErrWriteFailed should have error message")
	}
}
