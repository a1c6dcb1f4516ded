package mcp_test

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/contextwire/go-mcp"
	"github.com/google/go-cmp/cmp"
)

func collectFrames(t *testing.T, sess mcp.Session) []string {
	t.Helper()

	frames := make(chan []string, 1)
	go func() {
		var got []string
		for frame := range sess.Messages() {
			got = append(got, string(frame))
		}
		frames <- got
	}()

	select {
	case got := <-frames:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("Messages did not end")
		return nil
	}
}

func TestStdIOFraming(t *testing.T) {
	large := `{"jsonrpc":"2.0","method":"big","params":{"data":"` + strings.Repeat("x", 1<<20) + `"}}`

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "newline delimited",
			input: "{\"a\":1}\n{\"b\":2}\n",
			want:  []string{`{"a":1}`, `{"b":2}`},
		},
		{
			name:  "carriage returns and blank lines",
			input: "{\"a\":1}\r\n\r\n   \n\n{\"b\":2}\r\n",
			want:  []string{`{"a":1}`, `{"b":2}`},
		},
		{
			name:  "last frame without newline",
			input: "{\"a\":1}\n{\"b\":2}",
			want:  []string{`{"a":1}`, `{"b":2}`},
		},
		{
			name:  "frame beyond scanner limits",
			input: large + "\n",
			want:  []string{large},
		},
		{
			name:  "empty input",
			input: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := mcp.NewStdIO(strings.NewReader(tt.input), io.Discard, mcp.WithStdIOLogger(discardLogger()))
			sess, err := transport.StartSession(context.Background())
			if err != nil {
				t.Fatalf("StartSession failed: %v", err)
			}
			defer sess.Stop()

			if diff := cmp.Diff(tt.want, collectFrames(t, sess)); diff != "" {
				t.Errorf("frames mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStdIOConcurrentSends(t *testing.T) {
	reader, writer := io.Pipe()
	transport := mcp.NewStdIO(strings.NewReader(""), writer, mcp.WithStdIOLogger(discardLogger()))
	sess, err := transport.StartSession(context.Background())
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	defer sess.Stop()

	const senders = 50

	lines := make(chan string, senders)
	go func() {
		scanner := bufio.NewScanner(reader)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	var wg sync.WaitGroup
	for i := range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := mcp.NewIntID(int64(i))
			if err := sess.Send(context.Background(), mcp.JSONRPCMessage{ID: &id, Method: "ping"}); err != nil {
				t.Errorf("Send failed: %v", err)
			}
		}()
	}
	wg.Wait()

	seen := make(map[mcp.RequestID]bool)
	for range senders {
		select {
		case line := <-lines:
			msg, err := mcp.DecodeMessage([]byte(line))
			if err != nil {
				t.Fatalf("interleaved or malformed frame %q: %v", line, err)
			}
			seen[*msg.ID] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for frames")
		}
	}
	if len(seen) != senders {
		t.Errorf("got %d distinct frames, want %d", len(seen), senders)
	}
}

func TestStdIOStop(t *testing.T) {
	srvReader, cliWriter := io.Pipe()
	cliReader, srvWriter := io.Pipe()
	transport := mcp.NewStdIO(srvReader, srvWriter, mcp.WithStdIOLogger(discardLogger()))

	sessions := make(chan mcp.Session, 1)
	go func() {
		for sess := range transport.Sessions() {
			sessions <- sess
		}
	}()

	var sess mcp.Session
	select {
	case sess = <-sessions:
	case <-time.After(2 * time.Second):
		t.Fatal("no session yielded")
	}

	frames := make(chan []string, 1)
	go func() {
		var got []string
		for frame := range sess.Messages() {
			got = append(got, string(frame))
		}
		frames <- got
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := transport.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	// A pending read is released by the stop.
	select {
	case <-frames:
	case <-time.After(2 * time.Second):
		t.Fatal("Messages still blocked after Shutdown")
	}

	// Stopping twice is harmless.
	sess.Stop()

	id := mcp.NewIntID(1)
	if err := sess.Send(context.Background(), mcp.JSONRPCMessage{ID: &id, Method: "ping"}); !errors.Is(err, mcp.ErrSessionClosed) {
		t.Errorf("Send() after Stop error = %v, want ErrSessionClosed", err)
	}
	if _, err := transport.StartSession(context.Background()); !errors.Is(err, mcp.ErrSessionClosed) {
		t.Errorf("StartSession() after Stop error = %v, want ErrSessionClosed", err)
	}

	// Both pipe ends were closed, so the peer sees the session end.
	if _, err := cliWriter.Write([]byte("{}\n")); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("peer write error = %v, want ErrClosedPipe", err)
	}
	if _, err := cliReader.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Errorf("peer read error = %v, want EOF", err)
	}
}
