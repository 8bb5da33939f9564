// Package run coordinates the whole pipeline: one browser session driven
// through the collect phase, optionally the publish phase, with a phase
// machine and an event stream on top.
//
// # Phases
//
// A run moves through a small state machine:
//
//	idle -> scraping <-> waiting_login
//	        scraping -> uploading | done | failed | cancelled
//	        uploading -> done | failed | cancelled
//
// waiting_login surfaces the interactive login wall as its own state so
// operator surfaces can tell "working" from "waiting for you". A publish
// without a collect starts straight at uploading.
//
// # Events
//
// Every progress callback from the collector and publisher becomes an
// Event carrying the run's counters and phase. Emitters fan events out to
// the log, the TUI and the metrics registry; ThrottledEmitter keeps
// high-frequency counter updates from flooding slow sinks while letting
// phase transitions and log lines through.
//
// # One run at a time
//
// Runner is the front door: it guards the engine with an in-process flag
// and the output directory with an advisory flock, so two runs can never
// interleave downloads in the same directory. Cancel stops the active run
// at its next checkpoint; finished downloads and confirmed uploads stand.
package run
