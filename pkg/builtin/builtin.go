// Package builtin registers the condition evaluators, action executors and
// recipient resolvers that ship with the engine.
package builtin

import (
	"errors"
	"net/http"
	"time"

	"github.com/dukex/ruleflow/pkg/actions/custom"
	"github.com/dukex/ruleflow/pkg/actions/database"
	"github.com/dukex/ruleflow/pkg/actions/email"
	logaction "github.com/dukex/ruleflow/pkg/actions/log"
	"github.com/dukex/ruleflow/pkg/actions/noop"
	"github.com/dukex/ruleflow/pkg/actions/notification"
	"github.com/dukex/ruleflow/pkg/actions/webhook"
	"github.com/dukex/ruleflow/pkg/conditions"
	"github.com/dukex/ruleflow/pkg/eventbus"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
	"github.com/dukex/ruleflow/pkg/recipients"
	"github.com/dukex/ruleflow/pkg/registry"
)

// Deps are the collaborators built-in extensions delegate to. Every field is
// optional; an extension whose collaborator is missing fails when invoked.
type Deps struct {
	Roles     protocol.RoleService
	Queries   protocol.QueryService
	Directory protocol.Directory
	Mailer    protocol.Mailer
	Publisher eventbus.EventPublisher
	Database  database.Execer
	Handlers  *custom.HandlerSet

	HTTPClient        *http.Client
	RecipientCacheTTL time.Duration
}

// RegisterDefaults installs every built-in extension into reg.
func RegisterDefaults(reg *registry.Registry, deps Deps) error {
	directory := recipients.NewDirectoryResolver(deps.Directory, deps.RecipientCacheTTL)

	webhookOpts := []webhook.Option{}
	if deps.HTTPClient != nil {
		webhookOpts = append(webhookOpts, webhook.WithHTTPClient(deps.HTTPClient))
	}

	conditionEvaluators := map[models.ConditionType]protocol.ConditionEvaluator{
		models.ConditionTypeField:      conditions.FieldEvaluator{},
		models.ConditionTypeTime:       conditions.TimeEvaluator{},
		models.ConditionTypeRole:       conditions.RoleEvaluator{Roles: deps.Roles},
		models.ConditionTypeQueryMatch: conditions.QueryEvaluator{Queries: deps.Queries},
	}

	actionExecutors := map[string]protocol.ActionExecutor{
		models.ActionTypeNotification: notification.NewExecutor(deps.Publisher),
		models.ActionTypeEmail:        email.NewExecutor(deps.Mailer),
		models.ActionTypeWebhook:      webhook.NewExecutor(webhookOpts...),
		models.ActionTypeDatabase:     database.NewExecutor(deps.Database),
		models.ActionTypeCustom:       custom.NewExecutor(deps.Handlers),
		models.ActionTypeLog:          logaction.NewLogAction(),
		models.ActionTypeNoop:         noop.NewExecutor(),
	}

	recipientResolvers := map[models.RecipientType]protocol.RecipientResolver{
		models.RecipientTypeUser:    directory,
		models.RecipientTypeRole:    directory,
		models.RecipientTypeGroup:   directory,
		models.RecipientTypeDynamic: recipients.DynamicResolver{},
	}

	var errs []error

	for typeName, evaluator := range conditionEvaluators {
		_, err := reg.RegisterConditionEvaluator(string(typeName), evaluator)
		errs = append(errs, err)
	}

	for typeName, executor := range actionExecutors {
		_, err := reg.RegisterActionExecutor(typeName, executor)
		errs = append(errs, err)
	}

	for typeName, resolver := range recipientResolvers {
		_, err := reg.RegisterRecipientResolver(string(typeName), resolver)
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
