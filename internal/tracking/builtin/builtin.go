// Package builtin provides the default tracking patterns and handlers for
// the host catalog pages and API actions.
package builtin

import (
	"context"

	catalogdomain "github.com/smallbiznis/usagetrack/internal/catalog/domain"
	"github.com/smallbiznis/usagetrack/internal/tracking/domain"
	"github.com/smallbiznis/usagetrack/internal/tracking/extension"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const Name = "builtin"

const (
	TypeHome             = "home"
	TypeOrganizationHome = "organization_home"
	TypeOrganization     = "organization"
	TypeDatasetHome      = "dataset_home"
	TypeDataset          = "dataset"
	TypeResource         = "resource"
	TypeGroupHome        = "group_home"
	TypeGroup            = "group"
)

// DefaultPaths returns the built-in classification patterns in match order.
func DefaultPaths() *domain.Paths {
	p := domain.NewPaths()
	p.Add(TypeHome, `^$`)
	p.Add(TypeOrganizationHome, `^organization$`)
	p.Add(TypeOrganization, `^organization/[^/]+$`)
	p.Add(TypeDatasetHome, `^dataset$`)
	p.Add(TypeDataset, `^dataset/[^/]+$`)
	p.Add(TypeResource, `^dataset/[^/]+/resource/[^/]+$`)
	p.Add(domain.PathTypeResourceDownload, `^dataset/[^/]+/resource/[^/]+/download(/[^/]+)?$`)
	p.Add(TypeGroupHome, `^group$`)
	p.Add(TypeGroup, `^group/[^/]+$`)
	p.Add(domain.PathTypeAPIAction, `^api/action/[^/]+$`, `^api/[0-9]/action/[^/]+$`)
	return p
}

type Params struct {
	fx.In

	Catalog catalogdomain.Service
	Log     *zap.Logger
}

type Extension struct {
	catalog catalogdomain.Service
	log     *zap.Logger
}

func New(p Params) *Extension {
	return &Extension{
		catalog: p.Catalog,
		log:     p.Log.Named("tracking.builtin"),
	}
}

func (e *Extension) Name() string { return Name }

func (e *Extension) DefinePaths(current *domain.Paths) *domain.Paths {
	current.Merge(DefaultPaths())
	return current
}

func (e *Extension) RegisterHandlers(r extension.HandlerRegistrar) {
	r.Handle("GET", TypeDataset, e.getDataset)
	r.Handle("GET", TypeResource, getResource)
	r.Handle("GET", domain.PathTypeResourceDownload, getResourceDownload)
	r.Handle("GET", TypeOrganization, e.getOrganization)
	r.Handle("GET", TypeDatasetHome, home(domain.ObjectTypeDataset))
	r.Handle("GET", TypeOrganizationHome, home(domain.ObjectTypeOrganization))

	r.HandleAPIAction("GET", "package_show", apiShow(domain.ObjectTypeDataset))
	r.HandleAPIAction("GET", "organization_show", apiShow(domain.ObjectTypeOrganization))
	r.HandleAPIAction("GET", "resource_show", apiShow(domain.ObjectTypeResource))
	r.HandleAPIAction("GET", "package_search", apiPackageSearch)
	r.HandleAPIAction("POST", "package_create", apiPackageCreate)
}

// getDataset resolves the name or id in the path. An unknown dataset is still
// tracked, without an object id.
func (e *Extension) getDataset(ctx context.Context, u *domain.RequestURL) (domain.Payload, bool) {
	id := e.resolve(ctx, u.Part(-1), domain.ObjectTypeDataset)
	return domain.Payload{
		TrackingType:    domain.TrackingTypeUI,
		TrackingSubType: domain.SubTypeShow,
		ObjectType:      domain.ObjectTypeDataset,
		ObjectID:        id,
	}, true
}

func (e *Extension) getOrganization(ctx context.Context, u *domain.RequestURL) (domain.Payload, bool) {
	id := e.resolve(ctx, u.Part(-1), domain.ObjectTypeOrganization)
	return domain.Payload{
		TrackingType:    domain.TrackingTypeUI,
		TrackingSubType: domain.SubTypeShow,
		ObjectType:      domain.ObjectTypeOrganization,
		ObjectID:        id,
	}, true
}

func (e *Extension) resolve(ctx context.Context, ref, objectType string) string {
	if e.catalog == nil {
		return ""
	}
	lookup := e.catalog.ResolveDatasetID
	if objectType == domain.ObjectTypeOrganization {
		lookup = e.catalog.ResolveOrganizationID
	}
	id, ok, err := lookup(ctx, ref)
	if err != nil {
		e.log.Warn("catalog lookup failed",
			zap.String("object_type", objectType),
			zap.String("ref", ref),
			zap.Error(err),
		)
		return ""
	}
	if !ok {
		return ""
	}
	return id
}

func getResource(_ context.Context, u *domain.RequestURL) (domain.Payload, bool) {
	return domain.Payload{
		TrackingType:    domain.TrackingTypeUI,
		TrackingSubType: domain.SubTypeShow,
		ObjectType:      domain.ObjectTypeResource,
		ObjectID:        u.Part(-1),
	}, true
}

// getResourceDownload takes the resource id from dataset/{ds}/resource/{id}/download[/{file}].
func getResourceDownload(_ context.Context, u *domain.RequestURL) (domain.Payload, bool) {
	return domain.Payload{
		TrackingType:    domain.TrackingTypeUI,
		TrackingSubType: domain.SubTypeDownload,
		ObjectType:      domain.ObjectTypeResource,
		ObjectID:        u.Part(3),
	}, true
}

func home(objectType string) extension.Handler {
	return func(context.Context, *domain.RequestURL) (domain.Payload, bool) {
		return domain.Payload{
			TrackingType:    domain.TrackingTypeUI,
			TrackingSubType: domain.SubTypeHome,
			ObjectType:      objectType,
		}, true
	}
}

func apiShow(objectType string) extension.Handler {
	return func(_ context.Context, u *domain.RequestURL) (domain.Payload, bool) {
		return domain.Payload{
			TrackingType:    domain.TrackingTypeAPI,
			TrackingSubType: domain.SubTypeShow,
			ObjectType:      objectType,
			ObjectID:        u.QueryParam("id"),
		}, true
	}
}

func apiPackageCreate(_ context.Context, u *domain.RequestURL) (domain.Payload, bool) {
	return domain.Payload{
		TrackingType:    domain.TrackingTypeAPI,
		TrackingSubType: domain.SubTypeEdit,
		ObjectType:      domain.ObjectTypeDataset,
		ObjectID:        u.QueryParam("id"),
	}, true
}

// apiPackageSearch keeps the query text; a search has no single object.
func apiPackageSearch(_ context.Context, u *domain.RequestURL) (domain.Payload, bool) {
	p := domain.Payload{
		TrackingType:    domain.TrackingTypeAPI,
		TrackingSubType: domain.SubTypeSearch,
		ObjectType:      domain.ObjectTypeDataset,
	}
	if q := u.QueryParam("q"); q != "" {
		p.Extras = map[string]any{"q": q}
	}
	return p, true
}
