package payload

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// FileRecord describes a body or part persisted to disk
type FileRecord struct {
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

// Persister writes streams to uniquely named files in an uploads directory
type Persister struct {
	dir    string
	now    func() time.Time
	pid    int
	rand   io.Reader
	logger *logrus.Entry
}

// NewPersister creates a persister for dir using the process id, wall clock
// and crypto/rand for filename uniqueness
func NewPersister(dir string, logger *logrus.Entry) *Persister {
	if dir == "" {
		dir = os.TempDir()
	}
	if logger == nil {
		logger = logrus.WithField("component", "payload-persister")
	}
	return &Persister{
		dir:    dir,
		now:    time.Now,
		pid:    os.Getpid(),
		rand:   rand.Reader,
		logger: logger,
	}
}

// Write copies src into a new file created with exclusive-create semantics.
// On any failure the partial file is removed before the error is returned.
func (p *Persister) Write(ctx context.Context, src io.Reader) (FileRecord, error) {
	path, err := UniqueFilename(p.dir, p.now(), p.pid, p.rand)
	if err != nil {
		return FileRecord{}, newError(KindIO, "failed to generate upload filename", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return FileRecord{}, newError(KindIO, "failed to create upload file", err)
	}

	counter := NewCounter(file)
	done := newResolver[FileRecord]()

	// Cancellation races with the copy; whichever finishes first decides.
	stop := context.AfterFunc(ctx, func() {
		done.resolve(FileRecord{}, ctx.Err())
	})

	_, copyErr := io.Copy(counter, &contextReader{ctx: ctx, r: src})
	stop()
	if copyErr != nil {
		done.resolve(FileRecord{}, copyErr)
	}
	if closeErr := file.Close(); closeErr != nil {
		done.resolve(FileRecord{}, closeErr)
	}
	done.resolve(FileRecord{Path: path, Bytes: counter.Bytes()}, nil)

	record, err := done.result()
	if err == nil {
		return record, nil
	}

	if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		p.logger.WithError(removeErr).WithField("path", path).Debug("Failed to remove partial upload file")
	}

	var pe *Error
	if errors.As(err, &pe) {
		return FileRecord{}, err
	}
	return FileRecord{}, newError(KindIO, "failed to write upload file", err)
}

// contextReader stops reading once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
