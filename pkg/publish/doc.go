// Package publish drives the tier-list builder page: it attaches each
// downloaded cover to the builder's file input and waits for the builder
// to render the new tile before sending the next one.
//
// # Architecture
//
// The publisher is deliberately dumb about the page. It knows three
// selectors from the configuration:
//
//   - the file input (with a generic fallback for when the builder
//     renames its element)
//   - the orientation select, set once before uploading
//   - the confirmation selector, whose match count rising above the
//     pre-attempt baseline is the only signal an upload landed
//
// Files go up strictly one per attempt. The builder gives no error
// feedback, so a confirmation that never arrives is treated as a
// transient failure and the attempt is retried with backoff; items that
// still fail are marked and the rest of the batch continues.
//
// # Usage
//
//	publisher := publish.New(cfg, session, log)
//	outcome, err := publisher.Publish(ctx, runID, result.DownloadedItems())
//
// When keep_browser_open is set the caller must Detach the session rather
// than Close it, so the human can finish the tier list in the window the
// uploads landed in.
package publish
