package auth

import "context"

// Operator is the admin-surface user behind a request: an admin or a
// supervisor authenticated by an access token.
type Operator struct {
	Username string
	Role     string
}

type operatorKey struct{}

func WithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, operatorKey{}, op)
}

// OperatorFrom returns the operator stored by RequireAccessToken. It reports
// false when none is present or the stored one has no username or role.
func OperatorFrom(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(operatorKey{}).(Operator)
	if !ok || op.Username == "" || op.Role == "" {
		return Operator{}, false
	}
	return op, true
}
