package payload

import (
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// UniqueFilename builds "<unix millis>-<pid>-<16 hex chars>" inside dir.
// The random part is read from rnd so callers control the entropy source.
func UniqueFilename(dir string, now time.Time, pid int, rnd io.Reader) (string, error) {
	var suffix [8]byte
	if _, err := io.ReadFull(rnd, suffix[:]); err != nil {
		return "", fmt.Errorf("failed to read random filename suffix: %w", err)
	}

	name := strings.Join([]string{
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.Itoa(pid),
		hex.EncodeToString(suffix[:]),
	}, "-")

	return filepath.Join(dir, name), nil
}
