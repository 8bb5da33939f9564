// Package storage manages the output directory for downloaded cover images.
//
// The storage package handles:
//   - Creating the output directory and checking it is writable up front
//   - Deriving safe, deterministic filenames from page titles
//   - Resolving name collisions with counter suffixes
//   - Saving images with atomic write operations
//
// The Manager type is the primary interface for storage operations. It keeps
// an in-memory set of claimed filenames, seeded from files already on disk,
// so reruns into the same directory never overwrite earlier covers.
//
// Features:
//   - Atomic file writes using temporary files and rename
//   - Thread-safe operations with read-write mutex
//   - Title sanitization with a hash fallback for unusable titles
//   - Collision handling (name.jpg, name_2.jpg, name_3.jpg, ...)
//
// Usage:
//
//	manager, err := storage.NewManager("covers")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	saved, err := manager.Save("Hollow Knight", item.SourceURL, data)
//	if err != nil {
//	    log.Printf("Failed to save image: %v", err)
//	}
//	fmt.Println(saved.Path, saved.Size)
package storage
