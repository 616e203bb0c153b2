package recipients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/oliveagle/jsonpath"
)

// DynamicResolver reads identities from the entity data at a dotted attribute
// path. Strings become one identity, lists many; a missing path yields none.
// An exact top-level key wins over path traversal, as in condition fields.
type DynamicResolver struct{}

func (DynamicResolver) Resolve(_ context.Context, recipient models.Recipient, data map[string]any) ([]models.Identity, error) {
	path := strings.TrimPrefix(strings.TrimPrefix(recipient.AttributePath, "$"), ".")
	if path == "" {
		return nil, errors.New("dynamic recipient requires attribute_path")
	}

	if value, ok := data[path]; ok {
		return identitiesFrom(value), nil
	}

	compiled, err := jsonpath.Compile("$." + path)
	if err != nil {
		return nil, fmt.Errorf("invalid attribute_path %q: %w", recipient.AttributePath, err)
	}

	value, err := compiled.Lookup(data)
	if err != nil {
		return nil, nil
	}

	return identitiesFrom(value), nil
}

func identitiesFrom(value any) []models.Identity {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		var out []models.Identity
		for _, item := range v {
			out = append(out, identitiesFrom(item)...)
		}

		return out
	case []string:
		out := make([]models.Identity, 0, len(v))
		for _, s := range v {
			out = append(out, identityFromString(s))
		}

		return out
	case map[string]any:
		id, _ := v["id"].(string)
		address, _ := v["email"].(string)

		if id == "" {
			id = address
		}

		if id == "" {
			return nil
		}

		return []models.Identity{{ID: id, Kind: string(models.RecipientTypeDynamic), Address: address}}
	case string:
		if v == "" {
			return nil
		}

		return []models.Identity{identityFromString(v)}
	default:
		return []models.Identity{identityFromString(fmt.Sprint(v))}
	}
}

func identityFromString(s string) models.Identity {
	identity := models.Identity{ID: s, Kind: string(models.RecipientTypeDynamic)}
	if strings.Contains(s, "@") {
		identity.Address = s
	}

	return identity
}
