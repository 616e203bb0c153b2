package protocol

import (
	"context"

	"github.com/dukex/ruleflow/pkg/models"
)

// RoleService looks up the roles held by a user.
type RoleService interface {
	UserRoles(ctx context.Context, userID string) ([]string, error)
}

// QueryService runs a stored query against an entity snapshot.
type QueryService interface {
	Match(ctx context.Context, queryID string, entityData map[string]any) (bool, error)
}

// Directory is the identity directory behind user, role and group recipients.
type Directory interface {
	User(ctx context.Context, id string) (models.Identity, error)
	UsersInRole(ctx context.Context, role string) ([]models.Identity, error)
	GroupMembers(ctx context.Context, group string) ([]models.Identity, error)
}

// EmailMessage is a rendered email handed to a Mailer.
type EmailMessage struct {
	To             []string
	Subject        string
	Body           string
	Template       string
	IdempotencyKey string
}

// Mailer delivers rendered emails.
type Mailer interface {
	Send(ctx context.Context, message EmailMessage) error
}
