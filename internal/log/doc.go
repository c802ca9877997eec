// Package log builds the slog loggers used by gridextract.
//
// SecureHandler wraps any slog.Handler and masks recognizer credentials
// before they reach the output: the remote OCR service's API key and
// secret, issued access tokens, proxy passwords, and access tokens embedded
// in request URLs. Masking also applies in verbose mode, since debug logs
// are the ones most often pasted into bug reports.
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Debug("requesting token", "url", tokenURL, "api_key", cfg.APIKey)
//	// url=https://ocr.example/token api_key=***REDACTED***
package log
