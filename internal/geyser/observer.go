package geyser

// Observer receives diagnostics from the streaming core. Implementations
// must be safe for concurrent use and must not block: callbacks run on the
// reader path.
type Observer interface {
	// UpdateReceived is called for every classified inbound frame.
	UpdateReceived(kind UpdateKind)
	// DecodeFailure is called when a frame cannot be classified.
	DecodeFailure()
	// UpdateDropped is called when the commitment gate rejects an update.
	UpdateDropped(kind UpdateKind)
	// StateChanged is called on every reconnect supervisor transition.
	StateChanged(change StateChange)
}

// nopObserver is the default Observer.
type nopObserver struct{}

func (nopObserver) UpdateReceived(UpdateKind) {}
func (nopObserver) DecodeFailure()            {}
func (nopObserver) UpdateDropped(UpdateKind)  {}
func (nopObserver) StateChanged(StateChange)  {}
