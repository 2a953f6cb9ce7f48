package service

// EventEmitter receives library events for broadcasting to connected
// clients. Satisfied by sse.Manager.
type EventEmitter interface {
	Emit(event any)
}

type noopEmitter struct{}

func (noopEmitter) Emit(any) {}

// NewNoopEmitter returns an emitter that discards all events. Used in
// tests and tools that run without a connected client.
func NewNoopEmitter() EventEmitter {
	return noopEmitter{}
}
