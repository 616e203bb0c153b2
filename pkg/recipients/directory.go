package recipients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
	c "github.com/patrickmn/go-cache"
)

var ErrNoDirectory = errors.New("no directory configured")

// DirectoryResolver resolves user, role and group descriptors through the
// identity directory, caching each lookup for ttl.
type DirectoryResolver struct {
	directory protocol.Directory
	cache     *c.Cache
	ttl       time.Duration
}

// NewDirectoryResolver creates a cached directory resolver. A zero ttl disables caching.
func NewDirectoryResolver(directory protocol.Directory, ttl time.Duration) *DirectoryResolver {
	return &DirectoryResolver{
		directory: directory,
		cache:     c.New(ttl, 2*ttl),
		ttl:       ttl,
	}
}

func (d *DirectoryResolver) Resolve(ctx context.Context, recipient models.Recipient, _ map[string]any) ([]models.Identity, error) {
	if d.directory == nil {
		return nil, ErrNoDirectory
	}

	key := string(recipient.Type) + ":" + recipient.ID + recipient.Name
	if cached, found := d.cache.Get(key); found {
		return cached.([]models.Identity), nil
	}

	var (
		identities []models.Identity
		err        error
	)

	switch recipient.Type {
	case models.RecipientTypeUser:
		if recipient.ID == "" {
			return nil, errors.New("user recipient requires id")
		}

		var identity models.Identity

		identity, err = d.directory.User(ctx, recipient.ID)
		if err == nil {
			identities = []models.Identity{identity}
		}
	case models.RecipientTypeRole:
		if recipient.Name == "" {
			return nil, errors.New("role recipient requires name")
		}

		identities, err = d.directory.UsersInRole(ctx, recipient.Name)
	case models.RecipientTypeGroup:
		if recipient.Name == "" {
			return nil, errors.New("group recipient requires name")
		}

		identities, err = d.directory.GroupMembers(ctx, recipient.Name)
	default:
		return nil, fmt.Errorf("unsupported recipient type %q", recipient.Type)
	}

	if err != nil {
		return nil, err
	}

	if d.ttl > 0 {
		d.cache.Set(key, identities, d.ttl)
	}

	return identities, nil
}
