package fileutil

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/gofrs/flock"
	"github.com/oarkflow/json"
)

var errUnexpectedTail = errors.New("invalid JSON file: unexpected content after last element")

var (
	emptyArray   = []byte("[\n]\n")
	arrayClose   = []byte("\n]\n")
	elementBreak = []byte(",\n  ")
)

// Option is a functional option for JSONAppender.
type Option[T any] func(*JSONAppender[T])

// WithDedup skips elements whose JSON encoding was already written.
func WithDedup[T any]() Option[T] {
	return func(ja *JSONAppender[T]) {
		ja.seen = make(map[string]struct{})
	}
}

// JSONAppender keeps a file holding a JSON array of T, one element per
// line, and appends to it in place. A sibling .lock file serialises writers
// across processes.
type JSONAppender[T any] struct {
	file *os.File
	lock *flock.Flock
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewJSONAppender opens or creates filePath. An existing array is rewritten
// in the appender's layout; anything that is not a JSON array is rejected.
func NewJSONAppender[T any](filePath string, opts ...Option[T]) (*JSONAppender[T], error) {
	f, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, err
	}
	ja := &JSONAppender[T]{file: f, lock: flock.New(filePath + ".lock")}
	for _, opt := range opts {
		opt(ja)
	}
	if err := ja.load(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return ja, nil
}

func (ja *JSONAppender[T]) load() error {
	if err := ja.lock.Lock(); err != nil {
		return err
	}
	defer ja.lock.Unlock()

	content, err := io.ReadAll(ja.file)
	if err != nil {
		return err
	}
	var existing []T
	if len(bytes.TrimSpace(content)) > 0 {
		if err := json.Unmarshal(content, &existing); err != nil {
			return err
		}
	}
	encoded := make([][]byte, 0, len(existing))
	for _, element := range existing {
		data, err := json.Marshal(element)
		if err != nil {
			return err
		}
		encoded = append(encoded, data)
	}
	ja.remember(encoded)

	out := emptyArray
	if len(encoded) > 0 {
		out = append([]byte("[\n  "), bytes.Join(encoded, elementBreak)...)
		out = append(out, arrayClose...)
	}
	if err := ja.file.Truncate(0); err != nil {
		return err
	}
	if _, err := ja.file.WriteAt(out, 0); err != nil {
		return err
	}
	return ja.file.Sync()
}

// Append appends a single element.
func (ja *JSONAppender[T]) Append(element T) error {
	return ja.AppendBatch([]T{element})
}

// AppendBatch appends elements while keeping the file a valid JSON array.
func (ja *JSONAppender[T]) AppendBatch(elements []T) error {
	ja.mu.Lock()
	defer ja.mu.Unlock()
	if err := ja.lock.Lock(); err != nil {
		return err
	}
	defer ja.lock.Unlock()

	encoded, err := ja.encode(elements)
	if err != nil || len(encoded) == 0 {
		return err
	}
	fi, err := ja.file.Stat()
	if err != nil {
		return err
	}
	size := fi.Size()
	if size < int64(len(emptyArray)) {
		return errUnexpectedTail
	}
	tail := make([]byte, len(emptyArray))
	if _, err := ja.file.ReadAt(tail, size-int64(len(tail))); err != nil {
		return err
	}

	// Overwrite the closing bracket, keeping the previous element if any.
	var offset int64
	var out []byte
	switch {
	case size == int64(len(emptyArray)) && bytes.Equal(tail, emptyArray):
		offset = 2
		out = []byte("  ")
	case bytes.HasSuffix(tail, arrayClose):
		offset = size - int64(len(arrayClose))
		out = append([]byte{}, elementBreak...)
	default:
		return errUnexpectedTail
	}
	out = append(out, bytes.Join(encoded, elementBreak)...)
	out = append(out, arrayClose...)
	if err := ja.file.Truncate(offset); err != nil {
		return err
	}
	if _, err := ja.file.WriteAt(out, offset); err != nil {
		return err
	}
	ja.remember(encoded)
	return ja.file.Sync()
}

func (ja *JSONAppender[T]) encode(elements []T) ([][]byte, error) {
	encoded := make([][]byte, 0, len(elements))
	batch := make(map[string]struct{})
	for _, element := range elements {
		data, err := json.Marshal(element)
		if err != nil {
			return nil, err
		}
		if ja.seen != nil {
			key := string(data)
			if _, ok := ja.seen[key]; ok {
				continue
			}
			if _, ok := batch[key]; ok {
				continue
			}
			batch[key] = struct{}{}
		}
		encoded = append(encoded, data)
	}
	return encoded, nil
}

func (ja *JSONAppender[T]) remember(encoded [][]byte) {
	if ja.seen == nil {
		return
	}
	for _, data := range encoded {
		ja.seen[string(data)] = struct{}{}
	}
}

// Close closes the underlying file.
func (ja *JSONAppender[T]) Close() error {
	ja.mu.Lock()
	defer ja.mu.Unlock()
	return ja.file.Close()
}
