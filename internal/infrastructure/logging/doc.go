// Package logging provides structured logging using uber/zap.
//
// Two encodings are offered:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// With Config.Async set, the zap core is wrapped in an AsyncCore. Calls to
// Info, Warn and friends only append to an in-memory buffer; a background
// goroutine writes the buffer out every FlushInterval. Identical consecutive
// entries are written once with a repeated=N field, so a stage that warns on
// every iteration does not flood the output. The buffer is bounded and never
// blocks the caller; overflow is counted and reported.
//
// Close must be called before the process exits to flush what is buffered.
//
// Example Usage:
//
//	logger, err := logging.New(logging.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer logger.Close()
//	logger.Info("capture started", zap.Int("rate", 48000))
package logging
