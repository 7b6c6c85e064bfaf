package softdelete

import (
	"sort"

	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/store"
)

type Kind string

const (
	KindGroup              Kind = "group"
	KindRole               Kind = "role"
	KindUserInGroup        Kind = "user_in_group"
	KindGroupInRole        Kind = "group_in_role"
	KindProduct            Kind = "product"
	KindCustomer           Kind = "customer"
	KindProductCustomer    Kind = "product_customer"
	KindRawMaterial        Kind = "raw_material"
	KindSemiProduct        Kind = "semi_product"
	KindWarehouse          Kind = "warehouse"
	KindInventory          Kind = "inventory"
	KindRecipe             Kind = "recipe"
	KindRecipeDetail       Kind = "recipe_detail"
	KindSpec               Kind = "spec"
	KindSpecDetail         Kind = "spec_detail"
	KindProductionPlan     Kind = "production_plan"
	KindProductionOrder    Kind = "production_order"
	KindProductionStage    Kind = "production_stage"
	KindStageResource      Kind = "stage_resource"
	KindQualityCheck       Kind = "quality_check"
	KindProductionOutput   Kind = "production_output"
	KindOutputQualityCheck Kind = "output_quality_check"
)

// Relation is a child table referencing the entity through Column. Live rows
// in a blocking relation prevent deletion; cascading relations are
// soft-deleted along with the entity.
type Relation struct {
	Table   string
	Column  string
	Message string
	Cascade bool
}

type Entity struct {
	Kind      Kind
	Table     string
	Label     string
	New       func() store.Row
	Relations []Relation
}

func (e Entity) blocking() []Relation {
	var out []Relation
	for _, r := range e.Relations {
		if !r.Cascade {
			out = append(out, r)
		}
	}
	return out
}

func (e Entity) cascading() []Relation {
	var out []Relation
	for _, r := range e.Relations {
		if r.Cascade {
			out = append(out, r)
		}
	}
	return out
}

type Registry struct {
	entities map[Kind]Entity
}

func NewRegistry(entities ...Entity) *Registry {
	r := &Registry{entities: make(map[Kind]Entity, len(entities))}
	for _, e := range entities {
		r.entities[e.Kind] = e
	}
	return r
}

func (r *Registry) Lookup(kind Kind) (Entity, bool) {
	e, ok := r.entities[kind]
	return e, ok
}

func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.entities))
	for k := range r.entities {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func block(table, column, message string) Relation {
	return Relation{Table: table, Column: column, Message: message}
}

func cascade(table, column string) Relation {
	return Relation{Table: table, Column: column, Cascade: true}
}

// DefaultRegistry lists every deletable entity. Blocking relations are checked
// in the order given here, which decides the reported conflict.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Entity{
			Kind: KindGroup, Table: model.TableGroups, Label: "group",
			New: func() store.Row { return &model.Group{} },
			Relations: []Relation{
				block(model.TableUserInGroups, "group_id", "Cannot delete group: it is associated with users"),
				block(model.TableGroupInRoles, "group_id", "Cannot delete group: it is associated with roles"),
			},
		},
		Entity{
			Kind: KindRole, Table: model.TableRoles, Label: "role",
			New: func() store.Row { return &model.Role{} },
			Relations: []Relation{
				block(model.TableGroupInRoles, "role_id", "Cannot delete role: it is assigned to one or more groups"),
			},
		},
		Entity{
			Kind: KindRawMaterial, Table: model.TableRawMaterials, Label: "raw material",
			New: func() store.Row { return &model.RawMaterial{} },
			Relations: []Relation{
				block(model.TableRecipeDetails, "raw_material_id", "Cannot delete raw material: it is used in one or more recipes"),
				block(model.TableSpecDetails, "raw_material_id", "Cannot delete raw material: it is used in one or more specs"),
				block(model.TableInventories, "raw_material_id", "Cannot delete raw material: it has inventory records"),
			},
		},
		Entity{
			Kind: KindSemiProduct, Table: model.TableSemiProducts, Label: "semi-product",
			New: func() store.Row { return &model.SemiProduct{} },
			Relations: []Relation{
				block(model.TableRecipes, "semi_product_id", "Cannot delete semi-product: it is produced by one or more recipes"),
				block(model.TableRecipeDetails, "semi_product_id", "Cannot delete semi-product: it is used in one or more recipes"),
				block(model.TableSpecDetails, "semi_product_id", "Cannot delete semi-product: it is used in one or more specs"),
				block(model.TableProductionOrders, "semi_product_id", "Cannot delete semi-product: it is produced by one or more production orders"),
				block(model.TableInventories, "semi_product_id", "Cannot delete semi-product: it has inventory records"),
			},
		},
		Entity{
			Kind: KindProduct, Table: model.TableProducts, Label: "product",
			New: func() store.Row { return &model.Product{} },
			Relations: []Relation{
				block(model.TableRecipes, "product_id", "Cannot delete product: it is produced by one or more recipes"),
				block(model.TableProductionOrders, "product_id", "Cannot delete product: it is produced by one or more production orders"),
				block(model.TableProductCustomers, "product_id", "Cannot delete product: it is associated with customers"),
				block(model.TableInventories, "product_id", "Cannot delete product: it has inventory records"),
			},
		},
		Entity{
			Kind: KindCustomer, Table: model.TableCustomers, Label: "customer",
			New: func() store.Row { return &model.Customer{} },
			Relations: []Relation{
				block(model.TableProductCustomers, "customer_id", "Cannot delete customer: it is associated with products"),
			},
		},
		Entity{
			Kind: KindWarehouse, Table: model.TableWarehouses, Label: "warehouse",
			New: func() store.Row { return &model.Warehouse{} },
			Relations: []Relation{
				block(model.TableInventories, "warehouse_id", "Cannot delete warehouse: it holds inventory records"),
				block(model.TableProductionOutputs, "warehouse_id", "Cannot delete warehouse: it receives production outputs"),
			},
		},
		Entity{
			Kind: KindRecipe, Table: model.TableRecipes, Label: "recipe",
			New: func() store.Row { return &model.Recipe{} },
			Relations: []Relation{
				block(model.TableProductionOrders, "recipe_id", "Cannot delete recipe: it is used by one or more production orders"),
				cascade(model.TableRecipeDetails, "recipe_id"),
			},
		},
		Entity{
			Kind: KindSpec, Table: model.TableSpecs, Label: "spec",
			New: func() store.Row { return &model.Spec{} },
			Relations: []Relation{
				cascade(model.TableSpecDetails, "spec_id"),
			},
		},
		Entity{
			Kind: KindProductionPlan, Table: model.TableProductionPlans, Label: "production plan",
			New: func() store.Row { return &model.ProductionPlan{} },
			Relations: []Relation{
				block(model.TableProductionOrders, "plan_id", "Cannot delete production plan: it has production orders"),
			},
		},
		Entity{
			Kind: KindProductionOrder, Table: model.TableProductionOrders, Label: "production order",
			New: func() store.Row { return &model.ProductionOrder{} },
			Relations: []Relation{
				block(model.TableProductionOutputs, "production_order_id", "Cannot delete production order: it has recorded outputs"),
				block(model.TableProductionStages, "production_order_id", "Cannot delete production order: it has production stages"),
			},
		},
		Entity{
			Kind: KindProductionStage, Table: model.TableProductionStages, Label: "production stage",
			New: func() store.Row { return &model.ProductionStage{} },
			Relations: []Relation{
				block(model.TableQualityChecks, "production_stage_id", "Cannot delete production stage: it has quality checks"),
				cascade(model.TableStageResources, "production_stage_id"),
			},
		},
		Entity{
			Kind: KindQualityCheck, Table: model.TableQualityChecks, Label: "quality check",
			New: func() store.Row { return &model.QualityCheck{} },
			Relations: []Relation{
				block(model.TableOutputQualityChecks, "quality_check_id", "Cannot delete quality check: it is linked to production outputs"),
				cascade(model.TableQualityCheckItems, "quality_check_id"),
			},
		},
		Entity{
			Kind: KindProductionOutput, Table: model.TableProductionOutputs, Label: "production output",
			New: func() store.Row { return &model.ProductionOutput{} },
			Relations: []Relation{
				cascade(model.TableOutputQualityChecks, "production_output_id"),
			},
		},
		leaf(KindUserInGroup, model.TableUserInGroups, "user group", func() store.Row { return &model.UserInGroup{} }),
		leaf(KindGroupInRole, model.TableGroupInRoles, "group role", func() store.Row { return &model.GroupInRole{} }),
		leaf(KindProductCustomer, model.TableProductCustomers, "product customer", func() store.Row { return &model.ProductCustomer{} }),
		leaf(KindInventory, model.TableInventories, "inventory", func() store.Row { return &model.Inventory{} }),
		leaf(KindRecipeDetail, model.TableRecipeDetails, "recipe detail", func() store.Row { return &model.RecipeDetail{} }),
		leaf(KindSpecDetail, model.TableSpecDetails, "spec detail", func() store.Row { return &model.SpecDetail{} }),
		leaf(KindStageResource, model.TableStageResources, "stage resource", func() store.Row { return &model.StageResource{} }),
		leaf(KindOutputQualityCheck, model.TableOutputQualityChecks, "output quality check", func() store.Row { return &model.OutputQualityCheck{} }),
	)
}

func leaf(kind Kind, table, label string, newRow func() store.Row) Entity {
	return Entity{Kind: kind, Table: table, Label: label, New: newRow}
}
