// Package template renders action config values against the triggering entity.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
)

// ContextData builds the data a template sees for one action invocation.
// recipient is nil when the template is not rendered per recipient.
func ContextData(actionCtx protocol.ActionContext, recipient *models.Identity) map[string]any {
	recipients := make([]map[string]any, 0, len(actionCtx.Recipients))
	for _, identity := range actionCtx.Recipients {
		recipients = append(recipients, identityData(identity))
	}

	data := map[string]any{
		"entity":      actionCtx.EntityData,
		"entity_type": actionCtx.EntityType,
		"entity_id":   actionCtx.EntityID,
		"operation":   string(actionCtx.Operation),
		"recipients":  recipients,
		"env":         getEnvVars(),
		"execution": map[string]any{
			"id":               actionCtx.ExecutionID,
			"workflow_id":      actionCtx.WorkflowID,
			"workflow_version": actionCtx.WorkflowVersion,
			"action_id":        actionCtx.ActionID,
			"attempt":          actionCtx.Attempt,
		},
	}

	if recipient != nil {
		data["recipient"] = identityData(*recipient)
	}

	return data
}

func identityData(identity models.Identity) map[string]any {
	return map[string]any{"id": identity.ID, "kind": identity.Kind, "address": identity.Address}
}

// RenderString renders a template and returns its text without type inference.
// Strings without template actions are returned unchanged.
func RenderString(templateStr string, data any) (string, error) {
	if !strings.Contains(templateStr, "{{") {
		return templateStr, nil
	}

	tmpl, err := parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}

// Render renders a template and infers the type of the result: JSON objects
// and arrays are decoded, numbers become float64 and booleans bool.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := parse(templateStr)
	if err != nil {
		return nil, err
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := buf.String()

	// Try to parse as JSON if it looks like JSON
	result = strings.TrimSpace(result)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return jsonResult, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	// Try to parse as number
	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	// Try to parse as boolean
	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// Parse checks that templateStr is a well-formed template.
func Parse(templateStr string) (*template.Template, error) {
	return parse(templateStr)
}

func parse(templateStr string) (*template.Template, error) {
	tmpl, err := template.
		New("action").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}
				num := make([]byte, 1)
				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"json": func(v any) (string, error) {
				raw, err := json.Marshal(v)

				return string(raw), err
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	return tmpl, nil
}

// getEnvVars returns environment variables as a map.
func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
