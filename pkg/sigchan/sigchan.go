package sigchan

// Chan is a non-blocking signal channel. It notifies that something
// happened without carrying data; emits while the buffer is full are
// coalesced into the pending signal.
type Chan struct {
	c chan struct{}
}

// New creates a signal channel with the given buffer size.
func New(bufferSize int) *Chan {
	return &Chan{
		c: make(chan struct{}, bufferSize),
	}
}

// Emit raises the signal. Never blocks.
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C exposes the underlying channel for use in select statements.
func (c *Chan) C() <-chan struct{} {
	return c.c
}
