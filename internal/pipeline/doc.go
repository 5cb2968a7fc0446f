// Package pipeline wires the capture, fft and display stages together
// through two bounded queues and enforces their startup and teardown order.
//
// Data flow:
//
//	device → capture → samples queue → fft → spectra queue → display
//
// Ordering:
//   - Every stage is initialized before any is started; a failed Init tears
//     down the stages that already succeeded
//   - Stages start consumer-first, so nothing is produced into a queue that
//     has no reader yet
//   - Stages are signalled producer-first and all joined before the queues
//     close; the watchdog stops last
package pipeline
