// Package workflow loads workflow definitions, matches them against events and
// coordinates their executions.
package workflow

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dukex/ruleflow/pkg/dispatch"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
	"github.com/dukex/ruleflow/pkg/sources/schedule"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// CompiledWorkflow is a validated definition with its precomputed action plan.
// It is never mutated after Compile returns.
type CompiledWorkflow struct {
	Definition *models.WorkflowDefinition
	Plan       *dispatch.Plan
}

// ID returns the workflow id.
func (c *CompiledWorkflow) ID() string {
	return c.Definition.ID
}

// Version returns the definition version.
func (c *CompiledWorkflow) Version() int {
	return c.Definition.Version
}

// String describes a compiled workflow for logs.
func (c *CompiledWorkflow) String() string {
	return fmt.Sprintf("%s@v%d", c.Definition.ID, c.Definition.Version)
}

// ExecutorLookup resolves action executors so their config can be checked at load time.
type ExecutorLookup interface {
	ActionExecutor(typeName string) (protocol.ActionExecutor, error)
}

// Compiler validates definitions and builds their action plans.
type Compiler struct {
	validate  *validator.Validate
	executors ExecutorLookup
	schedules cron.ScheduleParser
}

// NewCompiler creates a compiler. executors may be nil; when set, action
// configs are checked by executors implementing protocol.ConfigValidator.
func NewCompiler(executors ExecutorLookup) *Compiler {
	return &Compiler{
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		executors: executors,
		schedules: schedule.Parser,
	}
}

// Compile validates def and returns its compiled form. Every rejection is a
// *models.DefinitionError.
func (c *Compiler) Compile(def *models.WorkflowDefinition) (*CompiledWorkflow, error) {
	if def == nil {
		return nil, models.NewDefinitionError("", "definition is nil")
	}

	if err := c.validate.Struct(def); err != nil {
		return nil, &models.DefinitionError{WorkflowID: def.ID, Reason: "invalid fields", Err: err}
	}

	if def.Trigger.Schedule != "" {
		if _, err := c.schedules.Parse(def.Trigger.Schedule); err != nil {
			return nil, &models.DefinitionError{WorkflowID: def.ID, Reason: "invalid schedule", Err: err}
		}
	}

	for i, cond := range def.Conditions {
		if err := checkCondition(cond, fmt.Sprintf("conditions[%d]", i)); err != nil {
			return nil, &models.DefinitionError{WorkflowID: def.ID, Reason: "invalid condition", Err: err}
		}
	}

	plan, err := dispatch.NewPlan(def.ID, def.Actions, def.IsSequential())
	if err != nil {
		return nil, err
	}

	if err := c.checkActionConfigs(def); err != nil {
		return nil, err
	}

	frozen := *def
	frozen.Conditions = slices.Clone(def.Conditions)
	frozen.Actions = plan.Actions

	return &CompiledWorkflow{Definition: &frozen, Plan: plan}, nil
}

func (c *Compiler) checkActionConfigs(def *models.WorkflowDefinition) error {
	if c.executors == nil {
		return nil
	}

	for _, action := range def.Actions {
		executor, err := c.executors.ActionExecutor(action.Type)
		if err != nil {
			// Unknown types fail at dispatch, not at load.
			continue
		}

		checker, ok := executor.(protocol.ConfigValidator)
		if !ok {
			continue
		}

		if err := checker.ValidateConfig(action.Config); err != nil {
			return &models.DefinitionError{
				WorkflowID: def.ID,
				Reason:     fmt.Sprintf("invalid config for action %q", action.ID),
				Err:        err,
			}
		}
	}

	return nil
}

func checkCondition(cond models.Condition, path string) error {
	switch cond.Type {
	case "":
		return fmt.Errorf("%s: missing type", path)
	case models.ConditionTypeField:
		if cond.Field == "" {
			return fmt.Errorf("%s: field is required", path)
		}

		if !slices.Contains(models.FieldOperators, cond.Operator) {
			return fmt.Errorf("%s: unknown operator %q", path, cond.Operator)
		}
	case models.ConditionTypeRole:
		if !slices.Contains([]string{models.RoleCheckHasRole, models.RoleCheckHasAnyRole, models.RoleCheckHasAllRoles}, cond.Check) {
			return fmt.Errorf("%s: unknown role check %q", path, cond.Check)
		}

		if len(cond.Roles) == 0 {
			return fmt.Errorf("%s: roles are required", path)
		}
	case models.ConditionTypeQueryMatch:
		if cond.QueryID == "" {
			return fmt.Errorf("%s: query_id is required", path)
		}
	case models.ConditionTypeComposite:
		return checkComposite(cond, path)
	}

	return nil
}

func checkComposite(cond models.Condition, path string) error {
	switch cond.Operator {
	case models.OperatorAnd, models.OperatorOr:
	case models.OperatorNot:
		if len(cond.Children) != 1 {
			return fmt.Errorf("%s: not requires exactly one child, got %d", path, len(cond.Children))
		}
	default:
		return fmt.Errorf("%s: unknown composite operator %q", path, cond.Operator)
	}

	var errs []error

	for i, child := range cond.Children {
		if err := checkCondition(child, fmt.Sprintf("%s.children[%d]", path, i)); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
