package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// StdIO implements a standard input/output transport layer for MCP communication using
// newline-delimited JSON-RPC messages over stdin/stdout or similar io.Reader/io.Writer pairs.
// It provides a single persistent session and serializes writes through an internal queue so
// that frames never interleave.
//
// The same value can be used as either ServerTransport or ClientTransport. Proper
// initialization requires using the NewStdIO constructor function to create new instances.
// Stopping the session closes the reader and writer when they implement io.Closer.
type StdIO struct {
	sess   *stdIOSession
	closed chan struct{}
}

// StdIOOption configures a StdIO transport.
type StdIOOption func(*StdIO)

type stdIOSession struct {
	id     string
	reader io.Reader
	writer io.Writer
	logger *slog.Logger

	writeMessages chan stdIOMessage
	writerOnce    sync.Once
	done          chan struct{}
	stopOnce      sync.Once
}

type stdIOMessage struct {
	msg  []byte
	errs chan error
}

// WithStdIOLogger sets the logger for the transport.
func WithStdIOLogger(logger *slog.Logger) StdIOOption {
	return func(s *StdIO) {
		s.sess.logger = logger.With(
			slog.String("package", "go-mcp"),
			slog.String("component", "stdio"),
		)
	}
}

// NewStdIO creates a new StdIO instance reading frames from reader and writing frames to writer.
func NewStdIO(reader io.Reader, writer io.Writer, options ...StdIOOption) *StdIO {
	s := &StdIO{
		sess: &stdIOSession{
			id:            uuid.New().String(),
			reader:        reader,
			writer:        writer,
			logger:        slog.Default(),
			writeMessages: make(chan stdIOMessage),
			done:          make(chan struct{}),
		},
		closed: make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Sessions implements the ServerTransport interface by providing an iterator that yields
// a single persistent session. The iteration ends once that session is stopped.
func (s *StdIO) Sessions() iter.Seq[Session] {
	return func(yield func(Session) bool) {
		defer close(s.closed)

		s.sess.startWriter()

		// StdIO only supports a single session, so we yield it and wait until it's done.
		if !yield(s.sess) {
			return
		}
		<-s.sess.done
	}
}

// Shutdown implements the ServerTransport interface by stopping the session and waiting for the
// Sessions loop to return.
func (s *StdIO) Shutdown(ctx context.Context) error {
	s.sess.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
	}
	return nil
}

// StartSession implements the ClientTransport interface by returning the single session.
func (s *StdIO) StartSession(_ context.Context) (Session, error) {
	select {
	case <-s.sess.done:
		return nil, ErrSessionClosed
	default:
	}

	s.sess.startWriter()
	return s.sess, nil
}

func (s *stdIOSession) ID() string {
	return s.id
}

func (s *stdIOSession) Send(ctx context.Context, msg JSONRPCMessage) error {
	msgBs, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	// Append newline to maintain message framing protocol
	msgBs = append(msgBs, '\n')

	ioMsg := stdIOMessage{
		msg:  msgBs,
		errs: make(chan error, 1),
	}

	// Queue the message for sending so concurrent senders never interleave.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	case s.writeMessages <- ioMsg:
	}

	// Wait for the resulting error channel to receive the error.
	select {
	case err := <-ioMsg.errs:
		if err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *stdIOSession) Messages() iter.Seq[json.RawMessage] {
	return func(yield func(json.RawMessage) bool) {
		lines := make(chan []byte)
		errs := make(chan error, 1)

		// The reader blocks in ReadBytes, so it runs on its own goroutine and the loop below
		// can still return as soon as the session is stopped.
		go s.readLines(lines, errs)

		for {
			select {
			case <-s.done:
				return
			case err := <-errs:
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
					s.logger.Error("failed to read message", slog.String("err", err.Error()))
				}
				return
			case line := <-lines:
				if !yield(line) {
					return
				}
			}
		}
	}
}

func (s *stdIOSession) readLines(lines chan<- []byte, errs chan<- error) {
	// Use bufio.Reader instead of bufio.Scanner to avoid max token size errors.
	reader := bufio.NewReader(s.reader)
	for {
		line, err := reader.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			select {
			case lines <- trimmed:
			case <-s.done:
				return
			}
		}
		if err != nil {
			errs <- err
			return
		}
	}
}

func (s *stdIOSession) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		// Closing both ends unblocks a pending read and tells the peer the session ended.
		for _, c := range []any{s.reader, s.writer} {
			closer, ok := c.(io.Closer)
			if !ok {
				continue
			}
			if err := closer.Close(); err != nil {
				s.logger.Debug("failed to close stream", slog.String("err", err.Error()))
			}
		}
	})
}

func (s *stdIOSession) startWriter() {
	s.writerOnce.Do(func() {
		go s.processWriteMessages()
	})
}

func (s *stdIOSession) processWriteMessages() {
	for {
		// Process writing the message queue until the session is closed.
		var msg stdIOMessage
		select {
		case <-s.done:
			return
		case msg = <-s.writeMessages:
		}

		_, err := s.writer.Write(msg.msg)

		msg.errs <- err
	}
}
