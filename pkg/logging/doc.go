// Package logging provides a process-wide structured logger for the page
// cache.
//
// The package wraps [log/slog] and exposes a single global logger instance
// that is initialized once and then retrieved via GetLogger. All subsystems
// should obtain a logger through this package rather than constructing their
// own slog.Logger values, so that log level and output destination are
// controlled from a single place.
//
// # Initialisation
//
// Call Init (or InitDefault for sensible defaults) once at program startup,
// before any goroutines that might call GetLogger are spawned:
//
//	if err := logging.Init(logging.Config{Level: logging.LevelDebug}); err != nil {
//	    log.Fatal(err)
//	}
//
// If GetLogger is called before Init, a default stdout logger is created
// lazily (via sync.Once) so that packages that log during init are safe.
//
// # Context helpers
//
// Several helpers return child loggers pre-populated with structured fields,
// reducing repetition:
//
//	log := logging.WithFile(path)          // adds file field
//	log := logging.WithPage(path, pageID)  // adds file and page_id fields
//	log := logging.WithComponent(name)     // adds component field
//
// Cursor read and write paths never log: bounds violations are reported
// through the sticky bounds flag instead, so the hot path stays allocation
// free.
package logging
