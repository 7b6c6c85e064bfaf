package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/sequence"
	"github.com/prodflow/prodflow/pkg/softdelete"
	"github.com/prodflow/prodflow/pkg/store"
	"github.com/prodflow/prodflow/pkg/tenant"
	"github.com/prodflow/prodflow/pkg/uniqueness"
)

type SpecDetailInput struct {
	RawMaterialID *uuid.UUID `json:"raw_material_id"`
	SemiProductID *uuid.UUID `json:"semi_product_id"`
	Parameter     string     `json:"parameter" binding:"required"`
	ExpectedValue string     `json:"expected_value"`
	MinValue      *float64   `json:"min_value"`
	MaxValue      *float64   `json:"max_value"`
	Unit          string     `json:"unit"`
	Sequence      *int       `json:"sequence"`
}

type SpecInput struct {
	CompanyID   *uuid.UUID        `json:"company_id"`
	Code        string            `json:"code" binding:"required"`
	Name        string            `json:"name" binding:"required"`
	Description string            `json:"description"`
	Version     string            `json:"version"`
	Details     []SpecDetailInput `json:"details"`
}

type SpecPatch struct {
	Code        *string `json:"code"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Version     *string `json:"version"`
}

func (s *Service) CreateSpec(ctx context.Context, scope tenant.Scope, in SpecInput) (*model.Spec, error) {
	in.Code, in.Name = strings.TrimSpace(in.Code), strings.TrimSpace(in.Name)
	if err := required("code", in.Code, "name", in.Name); err != nil {
		return nil, err
	}
	companyID, err := scope.CompanyForCreate(in.CompanyID)
	if err != nil {
		return nil, err
	}
	if err := s.unique.Ensure(ctx, scope, uniqueness.Code(model.TableSpecs, "spec code", in.Code, companyID)); err != nil {
		return nil, err
	}

	spec := &model.Spec{
		Base:        model.NewBase(companyID, scope.ActorID()),
		Code:        in.Code,
		Name:        in.Name,
		Description: in.Description,
		Version:     in.Version,
	}
	explicit := make([]*int, len(in.Details))
	for i, d := range in.Details {
		explicit[i] = d.Sequence
	}
	numbers, err := numberLines(explicit)
	if err != nil {
		return nil, err
	}
	for i, d := range in.Details {
		detail, err := s.newSpecDetail(ctx, scope, spec, d)
		if err != nil {
			return nil, apperr.Prefix(fmt.Sprintf("details[%d]: ", i), err)
		}
		detail.Sequence = numbers[i]
		spec.Details = append(spec.Details, *detail)
	}

	if err := s.db.Insert(ctx, spec); err != nil {
		return nil, err
	}
	sort.Slice(spec.Details, func(i, j int) bool { return spec.Details[i].Sequence < spec.Details[j].Sequence })
	return spec, nil
}

func (s *Service) newSpecDetail(ctx context.Context, scope tenant.Scope, spec *model.Spec, in SpecDetailInput) (*model.SpecDetail, error) {
	if strings.TrimSpace(in.Parameter) == "" {
		return nil, apperr.Validation("parameter is required")
	}
	if in.MinValue != nil && in.MaxValue != nil && *in.MinValue > *in.MaxValue {
		return nil, apperr.Validation("min_value must not exceed max_value")
	}
	if in.Sequence != nil && *in.Sequence <= 0 {
		return nil, apperr.Validation("sequence must be a positive integer")
	}
	target, err := model.SpecTargetFromColumns(in.RawMaterialID, in.SemiProductID)
	if err != nil {
		return nil, err
	}
	ref := target.Ref()
	if err := store.LoadParent(ctx, s.db, scope, ref.Kind.NewRow(), ref.ID, ref.Kind.Label(), spec.CompanyID); err != nil {
		return nil, err
	}
	d := &model.SpecDetail{
		Base:          model.NewBase(spec.CompanyID, scope.ActorID()),
		SpecID:        spec.ID,
		Parameter:     strings.TrimSpace(in.Parameter),
		ExpectedValue: in.ExpectedValue,
		MinValue:      in.MinValue,
		MaxValue:      in.MaxValue,
		Unit:          in.Unit,
	}
	d.SetTarget(target)
	return d, nil
}

func (s *Service) GetSpec(ctx context.Context, scope tenant.Scope, id uuid.UUID, opts ...store.ReadOptions) (*model.Spec, error) {
	var spec model.Spec
	q := store.ReadQuery(scope, id, opts...)
	q.Preload = []string{"Details"}
	if err := store.Lookup(s.db.FindOne(ctx, &spec, q), "spec"); err != nil {
		return nil, err
	}
	sort.Slice(spec.Details, func(i, j int) bool { return spec.Details[i].Sequence < spec.Details[j].Sequence })
	return &spec, nil
}

func (s *Service) ListSpecs(ctx context.Context, scope tenant.Scope, opts store.ListOptions) ([]model.Spec, error) {
	return list[model.Spec](ctx, s.db, opts.Query(scope, "code ASC"))
}

func (s *Service) UpdateSpec(ctx context.Context, scope tenant.Scope, id uuid.UUID, p SpecPatch) (*model.Spec, error) {
	var spec model.Spec
	if err := store.LoadTarget(ctx, s.db, scope, &spec, id, "spec"); err != nil {
		return nil, err
	}
	patch := map[string]interface{}{}
	if err := setString(patch, "code", p.Code); err != nil {
		return nil, err
	}
	if err := setString(patch, "name", p.Name); err != nil {
		return nil, err
	}
	setText(patch, "description", p.Description)
	setText(patch, "version", p.Version)
	if code, ok := patch["code"].(string); ok && code != spec.Code {
		rule := uniqueness.Code(model.TableSpecs, "spec code", code, spec.CompanyID).Excluding(id)
		if err := s.unique.Ensure(ctx, scope, rule); err != nil {
			return nil, err
		}
	}
	if err := s.update(ctx, scope, &model.Spec{}, id, patch); err != nil {
		return nil, err
	}
	return s.GetSpec(ctx, scope, id)
}

func (s *Service) AddSpecDetail(ctx context.Context, scope tenant.Scope, specID uuid.UUID, in SpecDetailInput) (*model.SpecDetail, error) {
	var spec model.Spec
	if err := store.LoadOwner(ctx, s.db, scope, &spec, specID, "spec"); err != nil {
		return nil, err
	}
	detail, err := s.newSpecDetail(ctx, scope, &spec, in)
	if err != nil {
		return nil, err
	}
	if in.Sequence != nil {
		taken, err := s.seq.Taken(ctx, scope, sequence.SpecDetails, spec.ID, *in.Sequence)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperr.Conflict("sequence %d is already used in this spec", *in.Sequence)
		}
		detail.Sequence = *in.Sequence
	} else {
		detail.Sequence, err = s.seq.Next(ctx, scope, sequence.SpecDetails, spec.ID)
		if err != nil {
			return nil, err
		}
	}
	if err := s.db.Insert(ctx, detail); err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *Service) RemoveSpecDetail(ctx context.Context, scope tenant.Scope, specID, detailID uuid.UUID) error {
	var detail model.SpecDetail
	if err := store.Get(ctx, s.db, scope, &detail, detailID, "spec detail"); err != nil {
		return err
	}
	if detail.SpecID != specID {
		return apperr.NotFound("spec detail")
	}
	_, err := s.Delete(ctx, scope, softdelete.KindSpecDetail, detailID)
	return err
}
