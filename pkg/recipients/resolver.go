// Package recipients turns abstract recipient descriptors into concrete,
// deduplicated identities.
package recipients

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
)

// Lookup resolves a recipient type to its resolver.
type Lookup interface {
	RecipientResolver(typeName string) (protocol.RecipientResolver, error)
}

// ResolutionError records why one descriptor resolved to nothing.
type ResolutionError struct {
	Recipient models.Recipient
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s recipient: %v", e.Recipient.Type, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

func (e *ResolutionError) Is(target error) bool {
	return target == models.ErrRecipientResolution
}

// SetResolver resolves every descriptor of an action and unions the result.
type SetResolver struct {
	lookup Lookup
	logger *slog.Logger
}

// NewSetResolver creates a resolver over the registered recipient resolvers.
func NewSetResolver(lookup Lookup, logger *slog.Logger) *SetResolver {
	return &SetResolver{
		lookup: lookup,
		logger: logger.With("module", "recipient_resolver"),
	}
}

// ResolveAll resolves each descriptor, deduplicating identities by ID in
// first-seen order. A failing descriptor contributes no identities and its
// error is returned alongside the rest; it never aborts resolution.
func (s *SetResolver) ResolveAll(ctx context.Context, recipients []models.Recipient, data map[string]any) ([]models.Identity, []error) {
	var (
		identities []models.Identity
		errs       []error
		seen       = make(map[string]struct{})
	)

	for _, recipient := range recipients {
		resolved, err := s.resolve(ctx, recipient, data)
		if err != nil {
			s.logger.WarnContext(ctx, "Recipient resolution failed", "type", recipient.Type, "error", err)
			errs = append(errs, &ResolutionError{Recipient: recipient, Err: err})

			continue
		}

		for _, identity := range resolved {
			if identity.ID == "" {
				continue
			}

			if _, ok := seen[identity.ID]; ok {
				continue
			}

			seen[identity.ID] = struct{}{}
			identities = append(identities, identity)
		}
	}

	return identities, errs
}

func (s *SetResolver) resolve(ctx context.Context, recipient models.Recipient, data map[string]any) (identities []models.Identity, err error) {
	resolver, err := s.lookup.RecipientResolver(string(recipient.Type))
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			identities = nil
			err = fmt.Errorf("resolver panicked: %v", r)
		}
	}()

	return resolver.Resolve(ctx, recipient, data)
}
