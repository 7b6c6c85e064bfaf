package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/softdelete"
	"github.com/prodflow/prodflow/pkg/store"
	"github.com/prodflow/prodflow/pkg/tenant"
	"github.com/prodflow/prodflow/pkg/uniqueness"
)

// GroupInput creates either a group or a role; both carry a name unique
// within the company.
type GroupInput struct {
	CompanyID   *uuid.UUID `json:"company_id"`
	Name        string     `json:"name" binding:"required"`
	Description string     `json:"description"`
}

type GroupPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (s *Service) CreateGroup(ctx context.Context, scope tenant.Scope, in GroupInput) (*model.Group, error) {
	if err := scope.RequireCompanyAdmin(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	companyID, err := scope.CompanyForCreate(in.CompanyID)
	if err != nil {
		return nil, err
	}
	if err := s.unique.Ensure(ctx, scope, uniqueness.Name(model.TableGroups, "group", name, companyID)); err != nil {
		return nil, err
	}
	g := &model.Group{Base: model.NewBase(companyID, scope.ActorID()), Name: name, Description: in.Description}
	if err := s.db.Insert(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Service) GetGroup(ctx context.Context, scope tenant.Scope, id uuid.UUID, opts ...store.ReadOptions) (*model.Group, error) {
	return get[model.Group](ctx, s.db, scope, id, "group", opts)
}

func (s *Service) ListGroups(ctx context.Context, scope tenant.Scope, opts store.ListOptions) ([]model.Group, error) {
	return list[model.Group](ctx, s.db, opts.Query(scope, "name ASC"))
}

func (s *Service) UpdateGroup(ctx context.Context, scope tenant.Scope, id uuid.UUID, p GroupPatch) (*model.Group, error) {
	if err := scope.RequireCompanyAdmin(); err != nil {
		return nil, err
	}
	var g model.Group
	if err := store.LoadTarget(ctx, s.db, scope, &g, id, "group"); err != nil {
		return nil, err
	}
	patch := map[string]interface{}{}
	if err := setString(patch, "name", p.Name); err != nil {
		return nil, err
	}
	setText(patch, "description", p.Description)
	if name, ok := patch["name"].(string); ok && name != g.Name {
		rule := uniqueness.Name(model.TableGroups, "group", name, g.CompanyID).Excluding(id)
		if err := s.unique.Ensure(ctx, scope, rule); err != nil {
			return nil, err
		}
	}
	if err := s.update(ctx, scope, &model.Group{}, id, patch); err != nil {
		return nil, err
	}
	return s.GetGroup(ctx, scope, id)
}

func (s *Service) CreateRole(ctx context.Context, scope tenant.Scope, in GroupInput) (*model.Role, error) {
	if err := scope.RequireCompanyAdmin(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	companyID, err := scope.CompanyForCreate(in.CompanyID)
	if err != nil {
		return nil, err
	}
	if err := s.unique.Ensure(ctx, scope, uniqueness.Name(model.TableRoles, "role", name, companyID)); err != nil {
		return nil, err
	}
	r := &model.Role{Base: model.NewBase(companyID, scope.ActorID()), Name: name, Description: in.Description}
	if err := s.db.Insert(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) GetRole(ctx context.Context, scope tenant.Scope, id uuid.UUID, opts ...store.ReadOptions) (*model.Role, error) {
	return get[model.Role](ctx, s.db, scope, id, "role", opts)
}

func (s *Service) ListRoles(ctx context.Context, scope tenant.Scope, opts store.ListOptions) ([]model.Role, error) {
	return list[model.Role](ctx, s.db, opts.Query(scope, "name ASC"))
}

func (s *Service) UpdateRole(ctx context.Context, scope tenant.Scope, id uuid.UUID, p GroupPatch) (*model.Role, error) {
	if err := scope.RequireCompanyAdmin(); err != nil {
		return nil, err
	}
	var r model.Role
	if err := store.LoadTarget(ctx, s.db, scope, &r, id, "role"); err != nil {
		return nil, err
	}
	patch := map[string]interface{}{}
	if err := setString(patch, "name", p.Name); err != nil {
		return nil, err
	}
	setText(patch, "description", p.Description)
	if name, ok := patch["name"].(string); ok && name != r.Name {
		rule := uniqueness.Name(model.TableRoles, "role", name, r.CompanyID).Excluding(id)
		if err := s.unique.Ensure(ctx, scope, rule); err != nil {
			return nil, err
		}
	}
	if err := s.update(ctx, scope, &model.Role{}, id, patch); err != nil {
		return nil, err
	}
	return s.GetRole(ctx, scope, id)
}

// AddUserToGroup links an externally managed user to a group. A user appears
// in a group at most once.
func (s *Service) AddUserToGroup(ctx context.Context, scope tenant.Scope, groupID uuid.UUID, userID string) (*model.UserInGroup, error) {
	if err := scope.RequireCompanyAdmin(); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperr.Validation("user_id is required")
	}
	var g model.Group
	if err := store.LoadOwner(ctx, s.db, scope, &g, groupID, "group"); err != nil {
		return nil, err
	}
	rule := uniqueness.Rule{
		Table:     model.TableUserInGroups,
		Fields:    []uniqueness.Field{{Column: "user_id", Value: userID}, {Column: "group_id", Value: g.ID}},
		CompanyID: g.CompanyID,
		Message:   "user is already a member of this group",
	}
	if err := s.unique.Ensure(ctx, scope, rule); err != nil {
		return nil, err
	}
	link := &model.UserInGroup{Base: model.NewBase(g.CompanyID, scope.ActorID()), UserID: userID, GroupID: g.ID}
	if err := s.db.Insert(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

func (s *Service) RemoveUserFromGroup(ctx context.Context, scope tenant.Scope, groupID uuid.UUID, userID string) error {
	var link model.UserInGroup
	err := s.db.FindOne(ctx, &link, store.Query{
		Scope:    scope,
		LiveOnly: true,
		Where:    []store.Cond{store.Eq("group_id", groupID), store.Eq("user_id", userID)},
	})
	if err := store.Lookup(err, "group member"); err != nil {
		return err
	}
	_, err = s.Delete(ctx, scope, softdelete.KindUserInGroup, link.ID)
	return err
}

func (s *Service) ListGroupUsers(ctx context.Context, scope tenant.Scope, groupID uuid.UUID) ([]model.UserInGroup, error) {
	return list[model.UserInGroup](ctx, s.db, store.Query{
		Scope:    scope,
		LiveOnly: true,
		Where:    []store.Cond{store.Eq("group_id", groupID)},
		Order:    "user_id ASC",
	})
}

// AssignRole grants a role to a group. Both must be live and belong to the
// same company.
func (s *Service) AssignRole(ctx context.Context, scope tenant.Scope, groupID, roleID uuid.UUID) (*model.GroupInRole, error) {
	if err := scope.RequireCompanyAdmin(); err != nil {
		return nil, err
	}
	var g model.Group
	if err := store.LoadOwner(ctx, s.db, scope, &g, groupID, "group"); err != nil {
		return nil, err
	}
	var r model.Role
	if err := store.LoadParent(ctx, s.db, scope, &r, roleID, "role", g.CompanyID); err != nil {
		return nil, err
	}
	rule := uniqueness.Rule{
		Table:     model.TableGroupInRoles,
		Fields:    []uniqueness.Field{{Column: "group_id", Value: g.ID}, {Column: "role_id", Value: r.ID}},
		CompanyID: g.CompanyID,
		Message:   "group already has this role",
	}
	if err := s.unique.Ensure(ctx, scope, rule); err != nil {
		return nil, err
	}
	link := &model.GroupInRole{Base: model.NewBase(g.CompanyID, scope.ActorID()), GroupID: g.ID, RoleID: r.ID}
	if err := s.db.Insert(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

func (s *Service) UnassignRole(ctx context.Context, scope tenant.Scope, groupID, roleID uuid.UUID) error {
	var link model.GroupInRole
	err := s.db.FindOne(ctx, &link, store.Query{
		Scope:    scope,
		LiveOnly: true,
		Where:    []store.Cond{store.Eq("group_id", groupID), store.Eq("role_id", roleID)},
	})
	if err := store.Lookup(err, "group role"); err != nil {
		return err
	}
	_, err = s.Delete(ctx, scope, softdelete.KindGroupInRole, link.ID)
	return err
}

func (s *Service) ListGroupRoles(ctx context.Context, scope tenant.Scope, groupID uuid.UUID) ([]model.Role, error) {
	links, err := list[model.GroupInRole](ctx, s.db, store.Query{
		Scope:    scope,
		LiveOnly: true,
		Where:    []store.Cond{store.Eq("group_id", groupID)},
	})
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return []model.Role{}, nil
	}
	ids := make([]uuid.UUID, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.RoleID)
	}
	return list[model.Role](ctx, s.db, store.Query{
		Scope:    scope,
		LiveOnly: true,
		Where:    []store.Cond{store.In("id", ids)},
		Order:    "name ASC",
	})
}
