package hl7adapter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/oarkflow/log"

	"github.com/oarkflow/hl7/pkg/contracts"
	"github.com/oarkflow/hl7/pkg/hl7"
)

// FileSourceOption customizes HL7 file source behaviour.
type FileSourceOption func(*FileSource)

// WithBlankLineSplit toggles whether blank lines delimit messages.
func WithBlankLineSplit(enabled bool) FileSourceOption {
	return func(fs *FileSource) {
		fs.splitOnBlankLine = enabled
	}
}

// WithReader reads messages from r instead of opening a file. The path is
// then only used as the envelope origin.
func WithReader(r io.Reader) FileSourceOption {
	return func(fs *FileSource) {
		fs.reader = r
	}
}

// FileSource streams HL7 messages from a file, one envelope per message.
// A new message starts at every MSH line, and at blank lines unless that
// is disabled. Lines of one message are joined with carriage returns.
type FileSource struct {
	path             string
	reader           io.Reader
	splitOnBlankLine bool
}

// NewFileSource builds a FileSource with optional behaviour tweaks.
func NewFileSource(path string, opts ...FileSourceOption) *FileSource {
	fs := &FileSource{
		path:             path,
		splitOnBlankLine: true,
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// Setup validates the source file exists.
func (fs *FileSource) Setup(_ context.Context) error {
	if fs.reader != nil {
		return nil
	}
	if fs.path == "" {
		return fmt.Errorf("hl7 file source: path is empty")
	}
	_, err := os.Stat(fs.path)
	return err
}

// Extract streams HL7 messages as envelopes.
func (fs *FileSource) Extract(ctx context.Context, opts ...contracts.Option) (<-chan contracts.Envelope, error) {
	options := contracts.ApplyOptions(opts...)
	reader := fs.reader
	var file *os.File
	if reader == nil {
		f, err := os.Open(fs.path)
		if err != nil {
			return nil, err
		}
		file = f
		reader = f
	}

	out := make(chan contracts.Envelope)
	go func() {
		defer close(out)
		if file != nil {
			defer file.Close()
		}

		scanner := bufio.NewScanner(reader)
		buf := make([]byte, 0, 128*1024)
		scanner.Buffer(buf, 4*1024*1024)
		scanner.Split(scanSegments)
		var builder strings.Builder
		sent := 0

		flush := func() bool {
			if builder.Len() == 0 {
				return true
			}
			message := builder.String()
			builder.Reset()
			select {
			case <-ctx.Done():
				return false
			case out <- contracts.Envelope{Raw: message, Origin: fs.path, Received: time.Now()}:
			}
			sent++
			return options.Limit == 0 || sent < options.Limit
		}

		for scanner.Scan() {
			line := scanner.Text()
			if fs.splitOnBlankLine && strings.TrimSpace(line) == "" {
				if !flush() {
					return
				}
				continue
			}
			if strings.HasPrefix(line, hl7.HeaderType) && builder.Len() > 0 {
				if !flush() {
					return
				}
			}
			if builder.Len() > 0 {
				builder.WriteString(hl7.SegmentTerminator)
			}
			builder.WriteString(line)
		}
		if err := scanner.Err(); err != nil {
			log.Printf("hl7 file source scan error: %v", err)
		}
		flush()
	}()

	return out, nil
}

// Close implements contracts.Source.
func (fs *FileSource) Close() error {
	return nil
}

// scanSegments splits on \r\n, \n or a lone \r.
func scanSegments(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		switch b {
		case '\n':
			return i + 1, data[:i], nil
		case '\r':
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if atEOF {
				return i + 1, data[:i], nil
			}
			return 0, nil, nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
