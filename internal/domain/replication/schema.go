package replication

import "fmt"

// Relation describes a many-to-one field pointing at another synchronized entity
type Relation struct {
	Target EntityType
	// ClearOnMissing sends false instead of dropping the field when the
	// referenced entity cannot be resolved remotely.
	ClearOnMissing bool
}

// Collection describes a one-to-many or many-to-many field carried as commands
type Collection struct {
	Child EntityType
	// Inverse is the child field pointing back at the parent (one-to-many only)
	Inverse string
	// LinksOnly marks a many-to-many field that only accepts LinkLines
	LinksOnly bool
}

// KeyField is one component of a natural key
type KeyField struct {
	Field string
	// Fold compares case-insensitively (=ilike) instead of exactly
	Fold bool
	// Optional keys match false on the remote side when unset
	Optional bool
}

// Schema is the static replication description of one entity type
type Schema struct {
	Type        EntityType
	Model       string
	Fields      []string
	Relations   map[string]Relation
	Collections map[string]Collection
	// Backlink is the remote field receiving the local id, if any
	Backlink string
	Key      []KeyField
	// UniqueName rejects duplicate case-insensitive names locally.
	// UniqueScope narrows the check to records sharing that field value.
	UniqueName  bool
	UniqueScope string
	// LookupOnly types are matched on the remote side but never created there
	LookupOnly bool
	// NestedOnly types are only created through a parent collection
	NestedOnly bool
}

// Allows reports whether a field may be forwarded to the remote model
func (s *Schema) Allows(field string) bool {
	for _, f := range s.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Relation returns the relation definition for a field
func (s *Schema) Relation(field string) (Relation, bool) {
	r, ok := s.Relations[field]
	return r, ok
}

// Collection returns the collection definition for a field
func (s *Schema) Collection(field string) (Collection, bool) {
	c, ok := s.Collections[field]
	return c, ok
}

// CheckLocalKey verifies that a local payload carries every mandatory
// natural key component. Fields in skip are filled in later (for example
// the inverse field of a nested line).
func (s *Schema) CheckLocalKey(v Values, skip ...string) error {
	for _, k := range s.Key {
		if k.Optional || contains(skip, k.Field) {
			continue
		}
		if !v.Has(k.Field) {
			return fmt.Errorf("%w: %s requires %q", ErrMalformedNaturalKey, s.Type, k.Field)
		}
	}
	return nil
}

// KeyDomain builds the remote search domain for a payload already
// translated into remote identifier space.
func (s *Schema) KeyDomain(remote Values) (Domain, error) {
	domain := make(Domain, 0, len(s.Key))
	for _, k := range s.Key {
		if !remote.Has(k.Field) {
			if k.Optional {
				domain = append(domain, Condition{Field: k.Field, Operator: OpEqual, Value: false})
				continue
			}
			return nil, fmt.Errorf("%w: %s missing %q", ErrMalformedNaturalKey, s.Type, k.Field)
		}
		op := OpEqual
		val := remote[k.Field]
		if k.Fold {
			op = OpILike
			if str, ok := val.(string); ok {
				val = TrimName(str)
			}
		}
		domain = append(domain, Condition{Field: k.Field, Operator: op, Value: val})
	}
	return domain, nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Remote search domains
// ---------------------------------------------------------------------------

// Search operators understood by the remote system
const (
	OpEqual = "="
	OpILike = "=ilike"
)

// Condition is a single remote search criterion
type Condition struct {
	Field    string
	Operator string
	Value    any
}

// Domain is a conjunction of conditions
type Domain []Condition

// ByID returns a domain matching a single remote id
func ByID(id RemoteID) Domain {
	return Domain{{Field: "id", Operator: OpEqual, Value: int64(id)}}
}

// ---------------------------------------------------------------------------
// Schema table
// ---------------------------------------------------------------------------

var nameKey = []KeyField{{Field: "name", Fold: true}}

var schemas = map[EntityType]*Schema{
	EntityCompany: {
		Type:       EntityCompany,
		Model:      "res.company",
		Fields:     []string{"name"},
		Key:        nameKey,
		LookupOnly: true,
	},
	EntityAccount: {
		Type:   EntityAccount,
		Model:  "account.account",
		Fields: []string{"name", "code", "account_type", "reconcile", "active", "note"},
		Relations: map[string]Relation{
			"company_id": {Target: EntityCompany, ClearOnMissing: true},
		},
		Backlink: "remote_account_id",
		Key:      nameKey,
	},
	EntityProductAttribute: {
		Type:   EntityProductAttribute,
		Model:  "product.attribute",
		Fields: []string{"name", "display_type", "create_variant", "sequence"},
		Collections: map[string]Collection{
			"value_ids": {Child: EntityProductAttributeValue, Inverse: "attribute_id"},
		},
		Backlink:   "related_attribute_id",
		Key:        nameKey,
		UniqueName: true,
	},
	EntityProductAttributeValue: {
		Type:   EntityProductAttributeValue,
		Model:  "product.attribute.value",
		Fields: []string{"name", "sequence", "html_color", "is_custom", "default_extra_price"},
		Relations: map[string]Relation{
			"attribute_id": {Target: EntityProductAttribute},
		},
		Key:         []KeyField{{Field: "name", Fold: true}, {Field: "attribute_id"}},
		UniqueName:  true,
		UniqueScope: "attribute_id",
	},
	EntityTemplateAttributeLine: {
		Type:   EntityTemplateAttributeLine,
		Model:  "product.template.attribute.line",
		Fields: []string{"sequence"},
		Relations: map[string]Relation{
			"attribute_id":    {Target: EntityProductAttribute},
			"product_tmpl_id": {Target: EntityProductTemplate},
		},
		Collections: map[string]Collection{
			"value_ids": {Child: EntityProductAttributeValue, LinksOnly: true},
		},
		Key:        []KeyField{{Field: "product_tmpl_id"}, {Field: "attribute_id"}},
		NestedOnly: true,
	},
	EntityProductCategory: {
		Type:   EntityProductCategory,
		Model:  "product.category",
		Fields: []string{"name"},
		Relations: map[string]Relation{
			"parent_id":                             {Target: EntityProductCategory, ClearOnMissing: true},
			"property_account_income_categ_id":      {Target: EntityAccount},
			"property_account_expense_categ_id":     {Target: EntityAccount},
			"property_account_downpayment_categ_id": {Target: EntityAccount},
		},
		Backlink: "remote_category_id",
		Key:      nameKey,
	},
	EntityProductTemplate: {
		Type:  EntityProductTemplate,
		Model: "product.template",
		Fields: []string{
			"name", "default_code", "type", "list_price", "standard_price",
			"sale_ok", "purchase_ok", "barcode", "active",
		},
		Relations: map[string]Relation{
			"categ_id":                    {Target: EntityProductCategory},
			"property_account_income_id":  {Target: EntityAccount},
			"property_account_expense_id": {Target: EntityAccount},
		},
		Collections: map[string]Collection{
			"attribute_line_ids": {Child: EntityTemplateAttributeLine, Inverse: "product_tmpl_id"},
			"seller_ids":         {Child: EntitySupplierInfo, Inverse: "product_tmpl_id"},
		},
		Backlink:   "related_product_id",
		Key:        nameKey,
		UniqueName: true,
	},
	EntityProductVariant: {
		Type:   EntityProductVariant,
		Model:  "product.product",
		Fields: []string{"name", "default_code", "barcode", "active", "lst_price", "standard_price"},
		Relations: map[string]Relation{
			"product_tmpl_id": {Target: EntityProductTemplate},
		},
		Collections: map[string]Collection{
			"product_template_attribute_value_ids": {Child: EntityProductAttributeValue, LinksOnly: true},
			"packaging_ids":                        {Child: EntityProductPackaging, Inverse: "product_id"},
		},
		Key: []KeyField{{Field: "name", Fold: true}, {Field: "product_tmpl_id", Optional: true}},
	},
	EntityProductPackaging: {
		Type:   EntityProductPackaging,
		Model:  "product.packaging",
		Fields: []string{"name", "qty", "barcode", "sequence"},
		Relations: map[string]Relation{
			"product_id": {Target: EntityProductVariant},
		},
		Key: []KeyField{{Field: "name", Fold: true}, {Field: "product_id"}},
	},
	EntitySupplierInfo: {
		Type:   EntitySupplierInfo,
		Model:  "product.supplierinfo",
		Fields: []string{"product_name", "product_code", "min_qty", "price", "delay", "date_start", "date_end"},
		Relations: map[string]Relation{
			"partner_id":      {Target: EntityPartner},
			"product_tmpl_id": {Target: EntityProductTemplate},
			"product_id":      {Target: EntityProductVariant},
		},
		Key: []KeyField{{Field: "product_tmpl_id"}, {Field: "partner_id"}},
	},
	EntityPricelist: {
		Type:   EntityPricelist,
		Model:  "product.pricelist",
		Fields: []string{"name", "active", "sequence", "discount_policy"},
		Relations: map[string]Relation{
			"company_id": {Target: EntityCompany, ClearOnMissing: true},
		},
		Collections: map[string]Collection{
			"item_ids": {Child: EntityPricelistItem, Inverse: "pricelist_id"},
		},
		Backlink: "remote_pricelist_id",
		Key:      nameKey,
	},
	EntityPricelistItem: {
		Type:  EntityPricelistItem,
		Model: "product.pricelist.item",
		Fields: []string{
			"applied_on", "compute_price", "fixed_price", "percent_price",
			"min_quantity", "date_start", "date_end", "price_discount", "price_surcharge",
		},
		Relations: map[string]Relation{
			"pricelist_id":    {Target: EntityPricelist},
			"product_tmpl_id": {Target: EntityProductTemplate},
			"product_id":      {Target: EntityProductVariant},
			"categ_id":        {Target: EntityProductCategory},
		},
		Backlink: "remote_pricelist_item_id",
		Key: []KeyField{
			{Field: "pricelist_id"},
			{Field: "product_tmpl_id", Optional: true},
			{Field: "product_id", Optional: true},
			{Field: "min_quantity", Optional: true},
		},
	},
	EntityPartner: {
		Type:  EntityPartner,
		Model: "res.partner",
		Fields: []string{
			"name", "mobile", "phone", "email", "street", "street2", "city", "zip",
			"vat", "is_company", "customer_rank", "supplier_rank", "active",
		},
		Relations: map[string]Relation{
			"parent_id":                  {Target: EntityPartner, ClearOnMissing: true},
			"company_id":                 {Target: EntityCompany, ClearOnMissing: true},
			"property_product_pricelist": {Target: EntityPricelist, ClearOnMissing: true},
		},
		Backlink: "related_partner_id",
		Key:      []KeyField{{Field: "name", Fold: true}, {Field: "mobile", Optional: true}},
	},
	EntitySalesOrder: {
		Type:   EntitySalesOrder,
		Model:  "sale.order",
		Fields: []string{"date_order", "client_order_ref", "note", "validity_date", "origin"},
		Relations: map[string]Relation{
			"partner_id":   {Target: EntityPartner},
			"pricelist_id": {Target: EntityPricelist, ClearOnMissing: true},
			"company_id":   {Target: EntityCompany, ClearOnMissing: true},
		},
		Collections: map[string]Collection{
			"order_line": {Child: EntitySalesOrderLine, Inverse: "order_id"},
		},
		Key: []KeyField{{Field: "partner_id"}, {Field: "date_order"}},
	},
	EntitySalesOrderLine: {
		Type:   EntitySalesOrderLine,
		Model:  "sale.order.line",
		Fields: []string{"name", "product_uom_qty", "price_unit", "discount", "sequence", "set_name", "product_packaging_qty"},
		Relations: map[string]Relation{
			"order_id":             {Target: EntitySalesOrder},
			"product_id":           {Target: EntityProductVariant},
			"product_template_id":  {Target: EntityProductTemplate},
			"product_packaging_id": {Target: EntityProductPackaging},
		},
		Key: []KeyField{{Field: "order_id"}, {Field: "product_id"}, {Field: "name", Fold: true, Optional: true}},
	},
}

// SchemaFor returns the schema of an entity type
func SchemaFor(t EntityType) (*Schema, error) {
	s, ok := schemas[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, t)
	}
	return s, nil
}

// EntityTypes returns every enrolled entity type
func EntityTypes() []EntityType {
	out := make([]EntityType, 0, len(schemas))
	for t := range schemas {
		out = append(out, t)
	}
	return out
}
