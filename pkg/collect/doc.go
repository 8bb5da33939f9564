// Package collect walks a rendered game library page and downloads every
// cover image it shows.
//
// The collect package orchestrates the whole collection pass, coordinating
// the browser session, login wall detection, lazy-load settling, markup
// extraction, storage, and download pacing.
//
// Architecture:
//
// The Collector struct is the main component that:
//   - Opens the library page in the browser session
//   - Waits for the human to clear the login wall when one is up
//   - Scrolls until the page height settles so every cover is loaded
//   - Extracts cover URLs and titles from the markup with goquery
//   - Deduplicates covers by canonical URL, keeping page order
//   - Downloads covers sequentially with pacing and bounded retries
//
// Usage:
//
//	session, err := launcher.Launch(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store, err := storage.NewManager(cfg.Download.OutputDir)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fetcher := downloader.NewHTTPFetcher(cfg.Download.Timeout.Dur(), cfg.Browser.UserAgent, log)
//	collector := collect.New(cfg, session, fetcher, store, log)
//
//	result, err := collector.Run(ctx, runID)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Summary())
//
// Failure handling:
//
// A single cover failing to download marks that item failed and moves on;
// the pass keeps going. Environment failures such as an unwritable output
// directory abort the pass, and a page that yields no covers at all comes
// back as an empty-result diagnosis rather than a success with zero items.
package collect
