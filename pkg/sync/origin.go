package sync

import "context"

type originKey struct{}

// WithRemoteOrigin marks the context as carrying changes that were pulled
// from the remote calendar. The dispatcher skips such changes so an inbound
// pull never triggers an outbound write back to the same calendar.
func WithRemoteOrigin(ctx context.Context) context.Context {
	return context.WithValue(ctx, originKey{}, true)
}

func IsRemoteOrigin(ctx context.Context) bool {
	origin, ok := ctx.Value(originKey{}).(bool)
	return ok && origin
}
