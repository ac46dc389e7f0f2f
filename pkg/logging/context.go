package logging

import (
	"log/slog"

	"pagecache/pkg/primitives"
)

// WithFile creates a logger with mapped-file context.
// Use this for mapping lifecycle and flush operations.
//
// Example:
//
//	log := logging.WithFile(path)
//	log.Info("file mapped", "page_size", pageSize)
func WithFile(path primitives.Filepath) *slog.Logger {
	return GetLogger().With("file", path.String())
}

// WithPage creates a logger with file and page context.
// Useful for fault and eviction paths.
//
// Example:
//
//	log := logging.WithPage(path, pageID)
//	log.Debug("page faulted", "dirty", isDirty)
func WithPage(path primitives.Filepath, pageID primitives.PageID) *slog.Logger {
	return GetLogger().With("file", path.String(), "page_id", int64(pageID))
}

// WithComponent creates a logger tagged with the originating component.
//
// Example:
//
//	log := logging.WithComponent("EvictionManager")
//	log.Warn("eviction flush failed", "error", err)
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}
