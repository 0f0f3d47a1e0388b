package window

import "sync"

// stackOrder tracks stacking order for raise/restack (§4.5), back to
// front: the last entry is the frontmost surface. It is
// bookkeeping only — the wire protocol has no dedicated stacking packet;
// ordering is implied by window-metadata updates a real client issues
// after a restack.
type stackOrder struct {
	mu    sync.Mutex
	order []ID
}

func (o *stackOrder) ensure(id ID) {
	for _, existing := range o.order {
		if existing == id {
			return
		}
	}
	o.order = append(o.order, id)
}

func (o *stackOrder) raise(id ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ensure(id)
	for i, existing := range o.order {
		if existing == id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	o.order = append(o.order, id)
}

func (o *stackOrder) restack(order []ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.order = append([]ID(nil), order...)
}

func (o *stackOrder) snapshot() []ID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ID(nil), o.order...)
}

// Raise moves id to the front of the stacking order (the end of the
// slice StackOrder returns).
func (m *Model) Raise(id ID) error {
	if _, ok := m.surfaces.Load(id); !ok {
		return errUnknownSurface(id)
	}
	m.stacking().raise(id)
	return nil
}

// Restack replaces the entire stacking order.
func (m *Model) Restack(order []ID) {
	m.stacking().restack(order)
}

// StackOrder returns the current order, back to front (the last entry is
// the frontmost surface).
func (m *Model) StackOrder() []ID {
	return m.stacking().snapshot()
}

func (m *Model) stacking() *stackOrder {
	m.stackOnce.Do(func() { m.stack = &stackOrder{} })
	return m.stack
}
