package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/smallbiznis/pipetrade/internal/doctype"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed model.conf
var modelText string

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds an in-memory enforcer whose policy is derived from the
// lifecycle tables of every configured document type.
func NewEnforcer(registry *doctype.Registry) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer, registry); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, documentType doctype.DocumentType, from doctype.Status, action doctype.Action, roles []doctype.Role) error {
	object := strings.TrimSpace(string(documentType))
	if object == "" {
		return ErrInvalidObject
	}
	if strings.TrimSpace(string(action)) == "" {
		return ErrInvalidAction
	}

	if s.Allowed(documentType, from, action, roles) {
		return nil
	}
	s.log.Debug("authorization denied",
		zap.String("document_type", object),
		zap.String("status", string(from)),
		zap.String("action", string(action)),
		zap.Strings("roles", roleStrings(roles)),
	)
	return ErrForbidden
}

func (s *ServiceImpl) Allowed(documentType doctype.DocumentType, from doctype.Status, action doctype.Action, roles []doctype.Role) bool {
	act := Act(from, action)
	for _, role := range roles {
		allowed, err := s.enforcer.Enforce(Subject(role), string(documentType), act)
		if err != nil {
			s.log.Warn("casbin enforce failed", zap.Error(err))
			continue
		}
		if allowed {
			return true
		}
	}
	return false
}

func Subject(role doctype.Role) string {
	return fmt.Sprintf("role:%s", strings.ToLower(strings.TrimSpace(string(role))))
}

// Act keys a policy by source status so the same action name can carry
// different roles from different statuses.
func Act(from doctype.Status, action doctype.Action) string {
	return fmt.Sprintf("%s:%s", from, action)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer, registry *doctype.Registry) error {
	var policies [][]string
	for _, def := range registry.Definitions() {
		for _, status := range def.Lifecycle.Statuses() {
			for _, rule := range def.Lifecycle.Rules(status) {
				for _, role := range rule.Roles {
					policies = append(policies, []string{
						Subject(role),
						string(def.Type),
						Act(status, rule.Action),
					})
				}
			}
		}
	}
	if len(policies) == 0 {
		return nil
	}
	_, err := enforcer.AddPolicies(policies)
	return err
}

func roleStrings(roles []doctype.Role) []string {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, string(role))
	}
	return out
}
