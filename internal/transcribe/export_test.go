package transcribe

// Export internal functions for testing.
// This file is only compiled during tests (suffix _test.go).

// ClassifyError exports classifyError for testing.
var ClassifyError = classifyError

// ClassifyStatus exports classifyStatus for testing.
var ClassifyStatus = classifyStatus

// IsRetryableError exports isRetryableError for testing.
var IsRetryableError = isRetryableError

// IsDiarizeUnsupported exports isDiarizeUnsupported for testing.
var IsDiarizeUnsupported = isDiarizeUnsupported

// NormalizeBody exports normalizeBody for testing.
var NormalizeBody = normalizeBody
