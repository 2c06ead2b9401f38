// Package payload reads HTTP request bodies into in-memory values, pass-through
// streams or persisted files.
//
// A Parser applies per-route Options in this order: the method and
// content-length guards, content-type negotiation against the allow-list, the
// optional gzip/deflate decoder and tap, then one of three outputs:
//
//   - data: the body is buffered under MaxBytes and Timeout and materialized
//     by mime (JSON, text, form, octet-stream)
//   - stream: the decoded reader is handed over untouched
//   - file: the body is written to a uniquely named file in Uploads
//
// multipart/form-data bodies are decomposed part by part regardless of the
// output mode; each part follows the output mode on its own, and the mapping
// is finalized only after every file write has completed.
//
// Failures are *Error values. Non-fatal kinds are routed through the route's
// FailAction; PayloadTooLarge, BadContentType and IoError always fail the
// request.
package payload
