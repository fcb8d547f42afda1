package shared

import "context"

// Actor identifies the authenticated principal supplied by the upstream
// gateway. The ledger core never authenticates; it only records who acted.
type Actor struct {
	ID     int64
	FirmID int64
}

type actorContextKey struct{}

// ContextWithActor stores the acting principal in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the acting principal from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
