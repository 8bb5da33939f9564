// Package report persists the outcome of a run next to the downloaded images.
//
// After every collect the tool writes download_summary.json into the output
// directory. The summary records the run ID, the library URL, the full item
// list with per-item status, and the upload outcome when a publish ran in the
// same invocation. A later publish loads the summary to rebuild the item list
// without touching the browser; when no summary exists, ItemsFromDir falls
// back to a sorted listing of the image files themselves.
//
// Summary files are written atomically (staged under a temporary name and
// renamed into place) to prevent corruption when a run is interrupted.
package report
