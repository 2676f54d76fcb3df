package transport

import "sync"

// GestureKind is the kind of user input that accompanied a request
type GestureKind string

const (
	GestureClick   GestureKind = "click"
	GestureKey     GestureKind = "key"
	GestureTouch   GestureKind = "touch"
	GesturePointer GestureKind = "pointer"
	GestureWheel   GestureKind = "wheel"
)

// Qualifies reports whether the gesture counts as user activation
func (k GestureKind) Qualifies() bool {
	switch k {
	case GestureClick, GestureKey, GestureTouch, GesturePointer, GestureWheel:
		return true
	}
	return false
}

// GestureGate holds at most one deferred action that runs on the next
// qualifying gesture and then disarms itself.
type GestureGate struct {
	mu sync.Mutex
	fn func()
}

// Arm sets the deferred action, replacing any previous one
func (g *GestureGate) Arm(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fn = fn
}

// Disarm drops the deferred action
func (g *GestureGate) Disarm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fn = nil
}

// Armed reports whether an action is waiting
func (g *GestureGate) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fn != nil
}

// Fire runs the deferred action if kind qualifies. It returns whether an
// action ran. Must be called without locks the action may take.
func (g *GestureGate) Fire(kind GestureKind) bool {
	if !kind.Qualifies() {
		return false
	}

	g.mu.Lock()
	fn := g.fn
	g.fn = nil
	g.mu.Unlock()

	if fn == nil {
		return false
	}
	fn()
	return true
}
