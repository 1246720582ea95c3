package service

// Event names carried on the WebSocket feed.
const (
	EventRatingUpdate = "rating_update"
	EventNewComment   = "new_comment"
	EventCopyUpdate   = "copy_update"
)

// EventPublisher pushes marketplace events to connected clients.
// Fire-and-forget: services never block or fail on a broadcast.
type EventPublisher interface {
	Broadcast(event, copySlug string, data interface{})
}

// NopPublisher discards every event. Used in tests and by the worker process.
type NopPublisher struct{}

func (NopPublisher) Broadcast(event, copySlug string, data interface{}) {}
