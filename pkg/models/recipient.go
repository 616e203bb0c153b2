package models

// RecipientType discriminates the recipient tagged union.
type RecipientType string

const (
	RecipientTypeUser    RecipientType = "user"
	RecipientTypeRole    RecipientType = "role"
	RecipientTypeGroup   RecipientType = "group"
	RecipientTypeDynamic RecipientType = "dynamic"
)

// Recipient is an abstract descriptor resolved to concrete identities before an action runs.
type Recipient struct {
	Type          RecipientType  `json:"type"                     validate:"required"`
	ID            string         `json:"id,omitempty"`
	Name          string         `json:"name,omitempty"`
	AttributePath string         `json:"attribute_path,omitempty"`
	Config        map[string]any `json:"config,omitempty"`
}

// UserRecipient addresses one user by id.
func UserRecipient(id string) Recipient {
	return Recipient{Type: RecipientTypeUser, ID: id}
}

// RoleRecipient addresses every user holding a role.
func RoleRecipient(name string) Recipient {
	return Recipient{Type: RecipientTypeRole, Name: name}
}

// GroupRecipient addresses every member of a group.
func GroupRecipient(name string) Recipient {
	return Recipient{Type: RecipientTypeGroup, Name: name}
}

// DynamicRecipient reads identities out of the entity data at a dotted path.
func DynamicRecipient(path string) Recipient {
	return Recipient{Type: RecipientTypeDynamic, AttributePath: path}
}

// Identity is a concrete, addressable recipient.
type Identity struct {
	ID      string `json:"id"`
	Kind    string `json:"kind,omitempty"`
	Address string `json:"address,omitempty"`
}
