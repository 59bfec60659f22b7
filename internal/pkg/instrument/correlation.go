package instrument

import "context"

type correlationIDKey struct{}

// SetCorrelationID stores the correlation ID on the context so every log
// line and outgoing message in the call chain can carry it.
func SetCorrelationID(ctx context.Context, cID string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, cID)
}

// GetCorrelationID returns the correlation ID from the context, or the empty
// string when the chain has none.
func GetCorrelationID(ctx context.Context) string {
	cID, ok := ctx.Value(correlationIDKey{}).(string)
	if !ok {
		return ""
	}
	return cID
}
