package domain

import (
	"context"
	"net/url"
)

// Reconciler settles gateway result callbacks. It never returns an error;
// every outcome is expressed as a Result.
type Reconciler interface {
	HandleResult(ctx context.Context, params url.Values) Result
}
