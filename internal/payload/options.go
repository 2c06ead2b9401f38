package payload

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Output selects how the decoded body is delivered
type Output string

const (
	OutputData   Output = "data"
	OutputStream Output = "stream"
	OutputFile   Output = "file"
)

// ParseMode selects between parsed and raw handling
type ParseMode string

const (
	ParseModeParse     ParseMode = "parse"
	ParseModeRaw       ParseMode = "raw"
	ParseModeRawGunzip ParseMode = "gunzip"
)

// FailAction decides what happens to non-fatal payload failures
type FailAction string

const (
	FailActionError  FailAction = "error"
	FailActionLog    FailAction = "log"
	FailActionIgnore FailAction = "ignore"
)

// Options is the per-route payload configuration. It is read-only to the pipeline.
type Options struct {
	MaxBytes   int64
	Allow      []string
	Output     Output
	Parse      ParseMode
	FailAction FailAction
	Uploads    string
	Override   string

	// Timeout bounds the data-mode buffering read; zero means no timeout
	Timeout time.Duration

	// Tap, when set, receives a copy of every decoded byte
	Tap func(r *http.Request) io.Writer
}

// DefaultMaxBytes is used when Options.MaxBytes is not positive
const DefaultMaxBytes int64 = 1024 * 1024

// withDefaults fills zero values
func (o Options) withDefaults() Options {
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if o.Output == "" {
		o.Output = OutputData
	}
	if o.Parse == "" {
		o.Parse = ParseModeParse
	}
	if o.FailAction == "" {
		o.FailAction = FailActionError
	}
	return o
}

// Validate checks the enum fields
func (o Options) Validate() error {
	switch o.Output {
	case "", OutputData, OutputStream, OutputFile:
	default:
		return fmt.Errorf("invalid payload output %q (expected data, stream or file)", o.Output)
	}
	switch o.Parse {
	case "", ParseModeParse, ParseModeRaw, ParseModeRawGunzip:
	default:
		return fmt.Errorf("invalid payload parse mode %q (expected parse, raw or gunzip)", o.Parse)
	}
	switch o.FailAction {
	case "", FailActionError, FailActionLog, FailActionIgnore:
	default:
		return fmt.Errorf("invalid payload fail action %q (expected error, log or ignore)", o.FailAction)
	}
	if o.MaxBytes < 0 {
		return fmt.Errorf("payload max bytes must not be negative, got %d", o.MaxBytes)
	}
	return nil
}

func (o Options) allows(mime string) bool {
	if len(o.Allow) == 0 {
		return true
	}
	for _, allowed := range o.Allow {
		if strings.EqualFold(allowed, mime) {
			return true
		}
	}
	return false
}
