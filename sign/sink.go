package sign

import (
	"fmt"
	"io"
	"os"

	"github.com/mattetti/filebuffer"
)

// byteSink is the random access store a signing pass serializes into
// before the result is flushed to the caller's writer. The pass owns
// the sink for its whole lifetime and cleans it up when it ends.
type byteSink interface {
	io.Reader
	io.ReaderAt
	io.Writer
	io.Seeker

	// Size returns the number of bytes the sink currently holds.
	Size() (int64, error)

	// CopyTo writes the full sink content to w from the start.
	CopyTo(w io.Writer) (int64, error)

	// Cleanup releases the resources backing the sink. Calling it more
	// than once is allowed.
	Cleanup() error
}

// newByteSink returns a temporary file backed sink when useTempFile is
// set, otherwise an in-memory one.
func newByteSink(useTempFile bool) (byteSink, error) {
	if useTempFile {
		return newFileSink()
	}
	return newMemorySink(), nil
}

// memorySink keeps the serialized copy in memory.
type memorySink struct {
	*filebuffer.Buffer
}

func newMemorySink() *memorySink {
	return &memorySink{filebuffer.New(nil)}
}

func (s *memorySink) Size() (int64, error) {
	return int64(s.Buff.Len()), nil
}

func (s *memorySink) CopyTo(w io.Writer) (int64, error) {
	if _, err := s.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return io.Copy(w, s.Buffer)
}

func (s *memorySink) Cleanup() error {
	return nil
}

// fileSink keeps the serialized copy in a temporary file so large
// documents do not have to fit in memory.
type fileSink struct {
	file    *os.File
	path    string
	removed bool
}

func newFileSink() (*fileSink, error) {
	f, err := os.CreateTemp("", "pdfseal-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	return &fileSink{file: f, path: f.Name()}, nil
}

func (s *fileSink) Read(p []byte) (int, error)  { return s.file.Read(p) }
func (s *fileSink) Write(p []byte) (int, error) { return s.file.Write(p) }

func (s *fileSink) ReadAt(p []byte, off int64) (int, error) {
	return s.file.ReadAt(p, off)
}

func (s *fileSink) Seek(offset int64, whence int) (int64, error) {
	return s.file.Seek(offset, whence)
}

func (s *fileSink) Size() (int64, error) {
	info, err := s.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *fileSink) CopyTo(w io.Writer) (int64, error) {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return io.Copy(w, s.file)
}

func (s *fileSink) Cleanup() error {
	if s.removed {
		return nil
	}
	s.removed = true
	s.file.Close()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
