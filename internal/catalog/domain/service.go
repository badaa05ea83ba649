package domain

import "context"

// Service resolves host catalog objects. Lookups that find nothing return
// ok=false with a nil error.
type Service interface {
	ResolveDatasetID(ctx context.Context, ref string) (string, bool, error)
	ResolveOrganizationID(ctx context.Context, ref string) (string, bool, error)
	Dataset(ctx context.Context, id string) (*Dataset, bool, error)
	Resource(ctx context.Context, id string) (*Resource, bool, error)
	Organization(ctx context.Context, id string) (*Group, bool, error)
	User(ctx context.Context, id string) (*User, bool, error)
	UserByName(ctx context.Context, name string) (*User, bool, error)
}
