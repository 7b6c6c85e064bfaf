package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/sequence"
	"github.com/prodflow/prodflow/pkg/softdelete"
	"github.com/prodflow/prodflow/pkg/store"
	"github.com/prodflow/prodflow/pkg/tenant"
	"github.com/prodflow/prodflow/pkg/uniqueness"
)

type RecipeDetailInput struct {
	RawMaterialID *uuid.UUID      `json:"raw_material_id"`
	SemiProductID *uuid.UUID      `json:"semi_product_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          string          `json:"unit" binding:"required"`
	// Sequence is placed after the recipe's last line when omitted.
	Sequence *int   `json:"sequence"`
	Notes    string `json:"notes"`
}

type RecipeInput struct {
	CompanyID      *uuid.UUID          `json:"company_id"`
	Code           string              `json:"code" binding:"required"`
	Name           string              `json:"name" binding:"required"`
	Description    string              `json:"description"`
	ProductID      *uuid.UUID          `json:"product_id"`
	SemiProductID  *uuid.UUID          `json:"semi_product_id"`
	OutputQuantity decimal.Decimal     `json:"output_quantity"`
	Unit           string              `json:"unit" binding:"required"`
	Details        []RecipeDetailInput `json:"details"`
}

type RecipePatch struct {
	Code           *string          `json:"code"`
	Name           *string          `json:"name"`
	Description    *string          `json:"description"`
	OutputQuantity *decimal.Decimal `json:"output_quantity"`
	Unit           *string          `json:"unit"`
}

// CreateRecipe stores a recipe with its ingredient lines. Lines without an
// explicit sequence are numbered 10, 20, 30 in the order given.
func (s *Service) CreateRecipe(ctx context.Context, scope tenant.Scope, in RecipeInput) (*model.Recipe, error) {
	in.Code, in.Name = strings.TrimSpace(in.Code), strings.TrimSpace(in.Name)
	if err := required("code", in.Code, "name", in.Name, "unit", in.Unit); err != nil {
		return nil, err
	}
	if !in.OutputQuantity.IsPositive() {
		return nil, apperr.Validation("output_quantity must be greater than zero")
	}
	produced, err := model.ProducedFromColumns(in.ProductID, in.SemiProductID)
	if err != nil {
		return nil, err
	}
	companyID, err := scope.CompanyForCreate(in.CompanyID)
	if err != nil {
		return nil, err
	}
	if err := s.unique.Ensure(ctx, scope, uniqueness.Code(model.TableRecipes, "recipe code", in.Code, companyID)); err != nil {
		return nil, err
	}
	ref := produced.Ref()
	if err := store.LoadParent(ctx, s.db, scope, ref.Kind.NewRow(), ref.ID, ref.Kind.Label(), companyID); err != nil {
		return nil, err
	}

	recipe := &model.Recipe{
		Base:           model.NewBase(companyID, scope.ActorID()),
		Code:           in.Code,
		Name:           in.Name,
		Description:    in.Description,
		OutputQuantity: in.OutputQuantity,
		Unit:           in.Unit,
	}
	recipe.SetProduced(produced)

	explicit := make([]*int, len(in.Details))
	for i, d := range in.Details {
		explicit[i] = d.Sequence
	}
	numbers, err := numberLines(explicit)
	if err != nil {
		return nil, err
	}
	for i, d := range in.Details {
		detail, err := s.newRecipeDetail(ctx, scope, recipe, d)
		if err != nil {
			return nil, apperr.Prefix(fmt.Sprintf("details[%d]: ", i), err)
		}
		detail.Sequence = numbers[i]
		recipe.Details = append(recipe.Details, *detail)
	}

	if err := s.db.Insert(ctx, recipe); err != nil {
		return nil, err
	}
	sortDetails(recipe.Details)
	return recipe, nil
}

// newRecipeDetail validates one ingredient line of recipe. The ingredient must
// be live, owned by the recipe's company, and not the recipe's own output.
func (s *Service) newRecipeDetail(ctx context.Context, scope tenant.Scope, recipe *model.Recipe, in RecipeDetailInput) (*model.RecipeDetail, error) {
	if !in.Quantity.IsPositive() {
		return nil, apperr.Validation("quantity must be greater than zero")
	}
	if strings.TrimSpace(in.Unit) == "" {
		return nil, apperr.Validation("unit is required")
	}
	if in.Sequence != nil && *in.Sequence <= 0 {
		return nil, apperr.Validation("sequence must be a positive integer")
	}
	ingredient, err := model.IngredientFromColumns(in.RawMaterialID, in.SemiProductID)
	if err != nil {
		return nil, err
	}
	ref := ingredient.Ref()
	if produced, err := recipe.Produced(); err == nil && produced.Ref() == ref {
		return nil, apperr.Precondition("a recipe cannot consume its own output")
	}
	if err := store.LoadParent(ctx, s.db, scope, ref.Kind.NewRow(), ref.ID, ref.Kind.Label(), recipe.CompanyID); err != nil {
		return nil, err
	}
	d := &model.RecipeDetail{
		Base:     model.NewBase(recipe.CompanyID, scope.ActorID()),
		RecipeID: recipe.ID,
		Quantity: in.Quantity,
		Unit:     in.Unit,
		Notes:    in.Notes,
	}
	d.SetIngredient(ingredient)
	return d, nil
}

func sortDetails(details []model.RecipeDetail) {
	sort.Slice(details, func(i, j int) bool { return details[i].Sequence < details[j].Sequence })
}

// GetRecipe returns the recipe with its live lines in sequence order.
func (s *Service) GetRecipe(ctx context.Context, scope tenant.Scope, id uuid.UUID, opts ...store.ReadOptions) (*model.Recipe, error) {
	var recipe model.Recipe
	q := store.ReadQuery(scope, id, opts...)
	q.Preload = []string{"Details"}
	if err := store.Lookup(s.db.FindOne(ctx, &recipe, q), "recipe"); err != nil {
		return nil, err
	}
	sortDetails(recipe.Details)
	return &recipe, nil
}

// ListRecipes lists recipes, optionally only those producing item.
func (s *Service) ListRecipes(ctx context.Context, scope tenant.Scope, item model.ItemRef, opts store.ListOptions) ([]model.Recipe, error) {
	var conds []store.Cond
	if !item.IsZero() {
		conds = append(conds, store.Eq(item.Kind.Column(), item.ID))
	}
	return list[model.Recipe](ctx, s.db, opts.Query(scope, "code ASC", conds...))
}

func (s *Service) UpdateRecipe(ctx context.Context, scope tenant.Scope, id uuid.UUID, p RecipePatch) (*model.Recipe, error) {
	var recipe model.Recipe
	if err := store.LoadTarget(ctx, s.db, scope, &recipe, id, "recipe"); err != nil {
		return nil, err
	}
	patch := map[string]interface{}{}
	if err := setString(patch, "code", p.Code); err != nil {
		return nil, err
	}
	if err := setString(patch, "name", p.Name); err != nil {
		return nil, err
	}
	if err := setString(patch, "unit", p.Unit); err != nil {
		return nil, err
	}
	setText(patch, "description", p.Description)
	if p.OutputQuantity != nil {
		if !p.OutputQuantity.IsPositive() {
			return nil, apperr.Validation("output_quantity must be greater than zero")
		}
		patch["output_quantity"] = *p.OutputQuantity
	}
	if code, ok := patch["code"].(string); ok && code != recipe.Code {
		rule := uniqueness.Code(model.TableRecipes, "recipe code", code, recipe.CompanyID).Excluding(id)
		if err := s.unique.Ensure(ctx, scope, rule); err != nil {
			return nil, err
		}
	}
	if err := s.update(ctx, scope, &model.Recipe{}, id, patch); err != nil {
		return nil, err
	}
	return s.GetRecipe(ctx, scope, id)
}

// AddRecipeDetail appends an ingredient line. An explicit sequence must not
// collide with a live line of the same recipe.
func (s *Service) AddRecipeDetail(ctx context.Context, scope tenant.Scope, recipeID uuid.UUID, in RecipeDetailInput) (*model.RecipeDetail, error) {
	var recipe model.Recipe
	if err := store.LoadOwner(ctx, s.db, scope, &recipe, recipeID, "recipe"); err != nil {
		return nil, err
	}
	detail, err := s.newRecipeDetail(ctx, scope, &recipe, in)
	if err != nil {
		return nil, err
	}
	if in.Sequence != nil {
		taken, err := s.seq.Taken(ctx, scope, sequence.RecipeDetails, recipe.ID, *in.Sequence)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperr.Conflict("sequence %d is already used in this recipe", *in.Sequence)
		}
		detail.Sequence = *in.Sequence
	} else {
		detail.Sequence, err = s.seq.Next(ctx, scope, sequence.RecipeDetails, recipe.ID)
		if err != nil {
			return nil, err
		}
	}
	if err := s.db.Insert(ctx, detail); err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *Service) RemoveRecipeDetail(ctx context.Context, scope tenant.Scope, recipeID, detailID uuid.UUID) error {
	var detail model.RecipeDetail
	if err := store.Get(ctx, s.db, scope, &detail, detailID, "recipe detail"); err != nil {
		return err
	}
	if detail.RecipeID != recipeID {
		return apperr.NotFound("recipe detail")
	}
	_, err := s.Delete(ctx, scope, softdelete.KindRecipeDetail, detailID)
	return err
}
