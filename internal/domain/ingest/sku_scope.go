package ingest

// Canonical field names the hierarchy resolver inspects. These are
// target_column names assigned by mapping rules, not raw headers.
const (
	FieldSKU       = "sku"
	FieldVariantID = "variant_id"
	FieldParentSKU = "parent_sku"
)

// HierarchyResolution says what level a row describes and which parent,
// if any, it links to.
type HierarchyResolution struct {
	Scope     SKUScope
	EntityKey string
	ParentSKU string // empty for product-level rows
}

// ResolveHierarchy decides whether a canonicalized row is product-level
// or variant-level. Presence of a non-empty variant identifier implies
// variant scope, with the product SKU as parent; otherwise the row is
// product-level keyed by its SKU. An explicit parent_sku column, when
// mapped, overrides the product SKU as the parent reference.
func ResolveHierarchy(fields map[string]any) HierarchyResolution {
	sku := stringField(fields, FieldSKU)
	variantID := stringField(fields, FieldVariantID)
	parent := stringField(fields, FieldParentSKU)

	if variantID == "" {
		return HierarchyResolution{Scope: ScopeProduct, EntityKey: sku}
	}

	if parent == "" {
		parent = sku
	}
	return HierarchyResolution{
		Scope:     ScopeVariant,
		EntityKey: variantID,
		ParentSKU: parent,
	}
}

func stringField(fields map[string]any, name string) string {
	v, ok := fields[name]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
