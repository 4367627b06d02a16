// Package event defines the observable notifications emitted by the
// marketplace core. Events are delivered synchronously to the registered
// handler after the emitting operation has committed its state.
package event

const (
	Error Type = iota
	AssetMinted
	OwnershipTransferred
	ItemListed
	ItemBought
	ItemCancelled
	ItemUpdated
	Withdrawal
)

type (
	Event struct {
		EventType Type
		Content   any
	}

	Type int

	Handler func(e *Event)
)

// Emit invokes the handler with the event, nil handler is a no-op.
func (h Handler) Emit(eventType Type, content any) {
	if h == nil {
		return
	}
	h(&Event{EventType: eventType, Content: content})
}
