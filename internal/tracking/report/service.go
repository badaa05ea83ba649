// Package report builds read-only usage reports over recorded tracking data.
package report

import (
	"context"
	"fmt"
	"net/url"

	catalogdomain "github.com/smallbiznis/usagetrack/internal/catalog/domain"
	"github.com/smallbiznis/usagetrack/internal/config"
	"github.com/smallbiznis/usagetrack/internal/tracking/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const timestampLayout = "2006-01-02 15:04:05"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Config  config.Config
	Repo    domain.Repository
	Catalog catalogdomain.Service
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	catalog catalogdomain.Service
	siteURL string
}

func New(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("tracking.report"),
		repo:    p.Repo,
		catalog: p.Catalog,
		siteURL: p.Config.SiteURL,
	}
}

func (s *Service) MostAccessedDatasetRows(ctx context.Context, limit int) ([]DatasetRow, error) {
	counts, err := s.repo.MostAccessedObjectWithToken(ctx, s.db, domain.ObjectTypeDataset, NormalizeLimit(limit, DefaultObjectLimit))
	if err != nil {
		return nil, err
	}

	rows := make([]DatasetRow, 0, len(counts))
	for _, c := range counts {
		row := DatasetRow{DatasetID: c.ObjectID, Total: c.Total}
		ds, ok, err := s.catalog.Dataset(ctx, c.ObjectID)
		if err != nil {
			return nil, fmt.Errorf("load dataset %s: %w", c.ObjectID, err)
		}
		if ok {
			row.DatasetTitle = ds.Title
			row.DatasetURL = s.url("dataset", ds.Name)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Service) MostAccessedResourceRows(ctx context.Context, limit int) ([]ResourceRow, error) {
	counts, err := s.repo.MostAccessedObjectWithToken(ctx, s.db, domain.ObjectTypeResource, NormalizeLimit(limit, DefaultObjectLimit))
	if err != nil {
		return nil, err
	}

	lookup := newLookup(s.catalog)
	rows := make([]ResourceRow, 0, len(counts))
	for _, c := range counts {
		row := ResourceRow{ResourceID: c.ObjectID, Total: c.Total}
		res, ok, err := s.catalog.Resource(ctx, c.ObjectID)
		if err != nil {
			return nil, fmt.Errorf("load resource %s: %w", c.ObjectID, err)
		}
		if !ok {
			rows = append(rows, row)
			continue
		}

		row.ResourceTitle = res.Name
		if row.ResourceTitle == "" {
			row.ResourceTitle = "Resource ID " + res.ID
		}
		row.PackageID = res.PackageID

		ds, err := lookup.dataset(ctx, res.PackageID)
		if err != nil {
			return nil, err
		}
		if ds != nil {
			row.ResourceURL = s.url("dataset", ds.Name, "resource", res.ID)
			row.PackageTitle = ds.Title
			if row.PackageTitle == "" {
				row.PackageTitle = ds.Name
			}
			row.PackageURL = s.url("dataset", ds.Name)

			org, err := lookup.organization(ctx, ds.OwnerOrg)
			if err != nil {
				return nil, err
			}
			if org != nil {
				row.OrganizationID = org.ID
				row.OrganizationTitle = org.Title
				row.OrganizationURL = s.url("organization", org.Name)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Service) MostAccessedTokenRows(ctx context.Context, limit int) ([]TokenRow, error) {
	counts, err := s.repo.MostAccessedToken(ctx, s.db, NormalizeLimit(limit, DefaultObjectLimit))
	if err != nil {
		return nil, err
	}

	lookup := newLookup(s.catalog)
	rows := make([]TokenRow, 0, len(counts))
	for _, c := range counts {
		row := TokenRow{UserID: c.UserID, TokenName: c.TokenName, Total: c.Total}
		user, err := lookup.user(ctx, c.UserID)
		if err != nil {
			return nil, err
		}
		if user != nil {
			row.UserFullname = user.Fullname
			row.UserName = user.Name
			row.UserURL = s.url("user", user.Name)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// AllTokenUsageRows lists recent records made with an API token. Records
// without a token are left out.
func (s *Service) AllTokenUsageRows(ctx context.Context, limit int) ([]UsageRow, error) {
	records, err := s.repo.AllUsage(ctx, s.db, NormalizeLimit(limit, DefaultAllUsageLimit))
	if err != nil {
		return nil, err
	}

	lookup := newLookup(s.catalog)
	rows := make([]UsageRow, 0, len(records))
	for _, rec := range records {
		if domain.Deref(rec.TokenName) == "" {
			continue
		}
		row := UsageRow{
			ID:              rec.ID,
			Timestamp:       rec.Timestamp.UTC().Format(timestampLayout),
			UserID:          domain.Deref(rec.UserID),
			TokenName:       domain.Deref(rec.TokenName),
			TrackingType:    rec.TrackingType,
			TrackingSubType: rec.TrackingSubType,
			ObjectType:      domain.Deref(rec.ObjectType),
			ObjectID:        domain.Deref(rec.ObjectID),
		}

		user, err := lookup.user(ctx, row.UserID)
		if err != nil {
			return nil, err
		}
		if user != nil {
			row.UserName = user.Name
			row.UserFullname = user.Fullname
		}

		if err := s.describeObject(ctx, lookup, &row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Service) describeObject(ctx context.Context, lookup *lookup, row *UsageRow) error {
	if row.ObjectID == "" {
		return nil
	}
	switch row.ObjectType {
	case domain.ObjectTypeDataset:
		ds, err := lookup.dataset(ctx, row.ObjectID)
		if err != nil || ds == nil {
			return err
		}
		row.ObjectTitle = ds.Title
		row.ObjectURL = s.url("dataset", ds.Name)
		org, err := lookup.organization(ctx, ds.OwnerOrg)
		if err != nil {
			return err
		}
		if org != nil {
			row.OrganizationTitle = org.Title
			row.OrganizationURL = s.url("organization", org.Name)
		}
	case domain.ObjectTypeResource:
		res, ok, err := s.catalog.Resource(ctx, row.ObjectID)
		if err != nil {
			return fmt.Errorf("load resource %s: %w", row.ObjectID, err)
		}
		if !ok {
			row.ObjectTitle = fmt.Sprintf("Resource ID %s (deleted)", row.ObjectID)
			return nil
		}
		row.ObjectTitle = res.Name
		row.ObjectURL = s.url("dataset", res.PackageID, "resource", res.ID)
	case domain.ObjectTypeOrganization:
		org, err := lookup.organization(ctx, row.ObjectID)
		if err != nil {
			return err
		}
		if org == nil {
			row.ObjectTitle = fmt.Sprintf("Organization ID %s (deleted)", row.ObjectID)
			return nil
		}
		row.ObjectTitle = org.Title
		row.ObjectURL = s.url("organization", org.ID)
	}
	return nil
}

// ActiveUsers counts distinct users with a login event per day, newest first.
func (s *Service) ActiveUsers(ctx context.Context, limit int) ([]ActiveUsersRow, error) {
	days, err := s.repo.ActiveUsersPerDay(ctx, s.db, NormalizeLimit(limit, DefaultActiveUsersLimit))
	if err != nil {
		return nil, err
	}
	rows := make([]ActiveUsersRow, 0, len(days))
	for _, d := range days {
		rows = append(rows, ActiveUsersRow{Day: d.Day, Total: d.Total})
	}
	return rows, nil
}

func (s *Service) url(segments ...string) string {
	path, err := url.JoinPath(s.siteURL+"/", segments...)
	if err != nil {
		return ""
	}
	return path
}

// lookup memoizes catalog reads for the duration of one report.
type lookup struct {
	catalog  catalogdomain.Service
	datasets map[string]*catalogdomain.Dataset
	orgs     map[string]*catalogdomain.Group
	users    map[string]*catalogdomain.User
}

func newLookup(catalog catalogdomain.Service) *lookup {
	return &lookup{
		catalog:  catalog,
		datasets: map[string]*catalogdomain.Dataset{},
		orgs:     map[string]*catalogdomain.Group{},
		users:    map[string]*catalogdomain.User{},
	}
}

func (l *lookup) dataset(ctx context.Context, id string) (*catalogdomain.Dataset, error) {
	return memo(ctx, l.datasets, id, l.catalog.Dataset, "dataset")
}

func (l *lookup) organization(ctx context.Context, id string) (*catalogdomain.Group, error) {
	return memo(ctx, l.orgs, id, l.catalog.Organization, "organization")
}

func (l *lookup) user(ctx context.Context, id string) (*catalogdomain.User, error) {
	return memo(ctx, l.users, id, l.catalog.User, "user")
}

func memo[T any](ctx context.Context, cache map[string]*T, id string, load func(context.Context, string) (*T, bool, error), kind string) (*T, error) {
	if id == "" {
		return nil, nil
	}
	if v, ok := cache[id]; ok {
		return v, nil
	}
	v, ok, err := load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", kind, id, err)
	}
	if !ok {
		v = nil
	}
	cache[id] = v
	return v, nil
}
