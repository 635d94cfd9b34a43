package onewire

import (
	"context"
	"fmt"
	"strings"
)

// PathElement is one hop of an OWPath: a coupler/switch address and the
// channel selected on it.
type PathElement struct {
	Switch  SwitchDevice
	Channel Channel
}

func (e PathElement) equal(other PathElement) bool {
	return e.Switch.Address() == other.Switch.Address() && e.Channel == other.Channel
}

// OWPath is an immutable route through a tree of DS2409-class couplers to a
// remote sub-bus. An empty path is the "root" (direct adapter-to-bus).
//
// Two paths compare by content (adapter identity plus element list), not by
// a cached string. The string form (see String) always includes the
// adapter name and port name, so it has exactly one shape regardless of
// whether the adapter's identity can be looked up at the moment it's
// rendered.
type OWPath struct {
	adapter  Adapter
	elements []PathElement
}

// NewPath creates an empty ("root") path on adapter.
func NewPath(adapter Adapter) OWPath {
	return OWPath{adapter: adapter}
}

// Extend returns a new path with one more element appended; it does not
// mutate p.
func (p OWPath) Extend(sw SwitchDevice, channel Channel) OWPath {
	next := make([]PathElement, len(p.elements)+1)
	copy(next, p.elements)
	next[len(p.elements)] = PathElement{Switch: sw, Channel: channel}
	return OWPath{adapter: p.adapter, elements: next}
}

// Elements returns the path's element list.
func (p OWPath) Elements() []PathElement {
	return p.elements
}

// String renders "<adapter-name>_<port-name>/<addr>_<chan>/...".
func (p OWPath) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s_%s/", p.adapter.AdapterName(), p.adapter.PortName())
	for _, e := range p.elements {
		fmt.Fprintf(&sb, "%s_%d/", e.Switch.Address().String(), e.Channel)
	}
	return sb.String()
}

// Equal reports whether p and other name the same route on the same
// adapter.
func (p OWPath) Equal(other OWPath) bool {
	if p.adapter != other.adapter {
		return false
	}
	if len(p.elements) != len(other.elements) {
		return false
	}
	for i := range p.elements {
		if !p.elements[i].equal(other.elements[i]) {
			return false
		}
	}
	return true
}

// IsParentOf reports whether p must be open for target to be open, i.e.
// p's element list is a strict prefix of target's. A path is never its own
// parent.
func (p OWPath) IsParentOf(target OWPath) bool {
	if len(target.elements) <= len(p.elements) {
		return false
	}
	for i := range p.elements {
		if !p.elements[i].equal(target.elements[i]) {
			return false
		}
	}
	return true
}

// CommonParent returns the longest path that is a parent of (or equal to)
// both p and other. It fails with KindInvalidArgument if the two paths are
// tied to different adapters.
func (p OWPath) CommonParent(other OWPath) (OWPath, error) {
	if p.adapter != other.adapter {
		return OWPath{}, NewError("commonParent", KindInvalidArgument,
			fmt.Errorf("paths belong to different adapters"))
	}

	result := OWPath{adapter: p.adapter}
	for i := 0; i < len(p.elements) && i < len(other.elements); i++ {
		if !p.elements[i].equal(other.elements[i]) {
			break
		}
		result.elements = append(result.elements, p.elements[i])
	}
	return result, nil
}

// Open walks the path's elements in order, turning each switch's channel
// on (smart-on where the switch supports it). An empty path issues a bare
// 1-Wire reset so a resetless search will work. Open is safe to repeat:
// the wire-level effect is not idempotent per call, but the resulting
// latch state converges.
func (p OWPath) Open(ctx context.Context) error {
	for _, e := range p.elements {
		state, err := e.Switch.ReadState(ctx, p.adapter)
		if err != nil {
			return err
		}
		if err := e.Switch.SetLatchState(e.Channel, true, e.Switch.HasSmartOn(), state); err != nil {
			return err
		}
		if err := e.Switch.WriteState(ctx, p.adapter, state); err != nil {
			return err
		}
	}

	if len(p.elements) == 0 {
		_, err := p.adapter.Reset(ctx)
		return err
	}
	return nil
}

// Close walks the path's elements in reverse, turning each switch's
// channel off (non-smart / forced).
func (p OWPath) Close(ctx context.Context) error {
	for i := len(p.elements) - 1; i >= 0; i-- {
		e := p.elements[i]
		state, err := e.Switch.ReadState(ctx, p.adapter)
		if err != nil {
			return err
		}
		if err := e.Switch.SetLatchState(e.Channel, false, false, state); err != nil {
			return err
		}
		if err := e.Switch.WriteState(ctx, p.adapter, state); err != nil {
			return err
		}
	}
	return nil
}
