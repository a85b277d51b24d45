package actor

// Actor is the contract every subsystem implements.
type Actor interface {
	// TakeParentEndpoint returns the parent-side endpoint, transferring
	// ownership to the caller. Callable exactly once; subsequent calls
	// return nil.
	TakeParentEndpoint() *Endpoint

	// ProcessConcrete performs the actor's own per-tick work, returning
	// whether it did anything.
	ProcessConcrete() (bool, error)
}

// ParentWrapper co-locates a concrete Actor with the parent-side endpoint
// it has already taken, so an owner can drive both as a single handle.
// Both the endpoint's Process and the actor's ProcessConcrete are driven
// on every tick; the work-was-done flag is their disjunction.
type ParentWrapper struct {
	actor    Actor
	endpoint *Endpoint
}

// Wrap takes child's parent-side endpoint and pairs it with child. Panics
// if TakeParentEndpoint has already been called (programmer error: an
// actor must be wrapped exactly once).
func Wrap(child Actor) *ParentWrapper {
	ep := child.TakeParentEndpoint()
	if ep == nil {
		panic("actor: parent endpoint already taken")
	}
	return &ParentWrapper{actor: child, endpoint: ep}
}

// Endpoint exposes the wrapped parent-side endpoint for Publish/Request.
func (w *ParentWrapper) Endpoint() *Endpoint {
	return w.endpoint
}

// DrainMessages forwards to the wrapped endpoint.
func (w *ParentWrapper) DrainMessages() []Frame {
	return w.endpoint.DrainMessages()
}

// Process drives the endpoint's Process and the actor's ProcessConcrete,
// in that order, returning the disjunction of both outcomes.
func (w *ParentWrapper) Process() (bool, error) {
	endpointWork := w.endpoint.Process()
	actorWork, err := w.actor.ProcessConcrete()
	if err != nil {
		return endpointWork || actorWork, err
	}
	return endpointWork || actorWork, nil
}
