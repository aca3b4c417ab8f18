package auth

import "context"

type clientKey struct{}

// WithClient stores the verified token payload of a request.
func WithClient(ctx context.Context, client TokenPayload) context.Context {
	return context.WithValue(ctx, clientKey{}, client)
}

// ClientFromContext returns the client that made the request. It is absent
// on public routes and when auth is disabled.
func ClientFromContext(ctx context.Context) (TokenPayload, bool) {
	client, ok := ctx.Value(clientKey{}).(TokenPayload)
	return client, ok
}
