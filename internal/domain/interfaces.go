package domain

import "context"

// MomentsProvider supplies a moments model from an upstream collaborator
// (estimation service, market-data pipeline). Its errors are propagated unchanged.
type MomentsProvider interface {
	Moments(ctx context.Context) (MomentsModel, error)
}

// MomentsProviderFunc adapts a function to MomentsProvider.
type MomentsProviderFunc func(ctx context.Context) (MomentsModel, error)

// Moments implements MomentsProvider.
func (f MomentsProviderFunc) Moments(ctx context.Context) (MomentsModel, error) {
	return f(ctx)
}
