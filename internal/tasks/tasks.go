// Package tasks defines the background task types shared between the
// scheduler and the worker.
package tasks

const (
	// TypeFeaturedRefresh re-ranks the featured shelf and refreshes the
	// redis cache. Enqueued periodically by the scheduler; carries no
	// payload.
	TypeFeaturedRefresh = "featured:refresh"
)
