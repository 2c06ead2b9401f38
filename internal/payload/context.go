package payload

import "context"

type contextKey struct{}

// NewContext returns a copy of ctx carrying p
func NewContext(ctx context.Context, p *Payload) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the payload stored by NewContext, if any
func FromContext(ctx context.Context) (*Payload, bool) {
	p, ok := ctx.Value(contextKey{}).(*Payload)
	return p, ok
}
