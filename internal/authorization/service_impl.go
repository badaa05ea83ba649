package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	catalogdomain "github.com/smallbiznis/usagetrack/internal/catalog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectTrackingReport = "tracking_report"
	ObjectTrackingEvent  = "tracking_event"
)

const (
	ActionReportView   = "tracking_report.view"
	ActionReportExport = "tracking_report.export"

	ActionEventRecord = "tracking_event.record"
)

const (
	roleSystem   = "role:system"
	roleSysadmin = "role:sysadmin"
	roleUser     = "role:user"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Catalog  catalogdomain.Service
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	catalog  catalogdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		catalog:  p.Catalog,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName, err := s.resolveRole(ctx, actor)
	if err != nil {
		s.denied(actor, object, action, err)
		return err
	}
	if err := s.ensureGrouping(actor, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(actor, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.denied(actor, object, action, ErrForbidden)
		return ErrForbidden
	}
	return nil
}

// resolveRole derives the role from the host user's sysadmin flag on every
// call so revocations take effect immediately.
func (s *ServiceImpl) resolveRole(ctx context.Context, actor string) (string, error) {
	if actor == "system" {
		return roleSystem, nil
	}
	userID, ok := strings.CutPrefix(actor, "user:")
	if !ok || strings.TrimSpace(userID) == "" {
		return "", ErrInvalidActor
	}
	user, found, err := s.catalog.User(ctx, userID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrForbidden
	}
	if user.Sysadmin {
		return roleSysadmin, nil
	}
	return roleUser, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) denied(actor, object, action string, err error) {
	s.log.Warn("authorization denied",
		zap.String("subject", actor),
		zap.String("object", object),
		zap.String("action", action),
		zap.Error(err),
	)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{roleSysadmin, ObjectTrackingReport, ActionReportView},
		{roleSysadmin, ObjectTrackingReport, ActionReportExport},
		{roleSysadmin, ObjectTrackingEvent, ActionEventRecord},

		// host CMS integrations calling in as the system actor
		{roleSystem, ObjectTrackingEvent, ActionEventRecord},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
