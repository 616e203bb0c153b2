package protocol

import (
	"context"

	"github.com/dukex/ruleflow/pkg/models"
)

// RecipientResolver turns one recipient descriptor into concrete identities.
// Implementations must not mutate entityData.
type RecipientResolver interface {
	Resolve(ctx context.Context, recipient models.Recipient, entityData map[string]any) ([]models.Identity, error)
}

// RecipientResolverFunc adapts a function to RecipientResolver.
type RecipientResolverFunc func(ctx context.Context, recipient models.Recipient, entityData map[string]any) ([]models.Identity, error)

func (f RecipientResolverFunc) Resolve(ctx context.Context, recipient models.Recipient, entityData map[string]any) ([]models.Identity, error) {
	return f(ctx, recipient, entityData)
}
