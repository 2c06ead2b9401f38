package monitoring

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesWriter_RecordsTransferredBytes(t *testing.T) {
	counter := BytesTransferred.WithLabelValues("inbound", "test-writer")
	before := testutil.ToFloat64(counter)

	w := BytesWriter{Direction: "inbound", Output: "test-writer"}
	n, err := io.Copy(w, strings.NewReader("twelve bytes"))
	require.NoError(t, err)

	assert.Equal(t, int64(12), n)
	assert.Equal(t, before+12, testutil.ToFloat64(counter))
}

func TestRecordPayload_EmptyMimeIsLabelledNone(t *testing.T) {
	counter := PayloadsTotal.WithLabelValues("test-output", "none", "PayloadTooLarge")
	before := testutil.ToFloat64(counter)

	RecordPayload("test-output", "", "PayloadTooLarge", time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestRecordFilePersisted(t *testing.T) {
	success := FilesPersistedTotal.WithLabelValues("success")
	beforeSuccess := testutil.ToFloat64(success)
	beforeBytes := testutil.ToFloat64(FileBytesWritten)

	RecordFilePersisted("success", 2048)
	RecordFilePersisted("error", 0)

	assert.Equal(t, beforeSuccess+1, testutil.ToFloat64(success))
	assert.Equal(t, beforeBytes+2048, testutil.ToFloat64(FileBytesWritten))
}

func TestRecordFailAction(t *testing.T) {
	counter := FailActionsTotal.WithLabelValues("log", "BadJson")
	before := testutil.ToFloat64(counter)

	RecordFailAction("log", "BadJson")
	RecordFailAction("log", "BadJson")

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestSetServerInfo(t *testing.T) {
	SetServerInfo("1.2.3", "abc123", "2026-01-01")
	assert.Equal(t, float64(1), testutil.ToFloat64(ServerInfo.WithLabelValues("1.2.3", "abc123", "2026-01-01")))
}
