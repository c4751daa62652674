package replication

import (
	"fmt"
	"strconv"
)

// EntityType identifies a synchronized entity type
type EntityType string

const (
	EntityAccount               EntityType = "account"
	EntityCompany               EntityType = "company"
	EntityProductAttribute      EntityType = "product_attribute"
	EntityProductAttributeValue EntityType = "product_attribute_value"
	EntityTemplateAttributeLine EntityType = "product_template_attribute_line"
	EntityProductCategory       EntityType = "product_category"
	EntityProductTemplate       EntityType = "product_template"
	EntityProductVariant        EntityType = "product_variant"
	EntityProductPackaging      EntityType = "product_packaging"
	EntitySupplierInfo          EntityType = "supplier_info"
	EntityPricelist             EntityType = "pricelist"
	EntityPricelistItem         EntityType = "pricelist_item"
	EntityPartner               EntityType = "partner"
	EntitySalesOrder            EntityType = "sales_order"
	EntitySalesOrderLine        EntityType = "sales_order_line"
)

// String returns the string representation of the entity type
func (t EntityType) String() string {
	return string(t)
}

// IsValid reports whether the entity type is enrolled in replication
func (t EntityType) IsValid() bool {
	_, ok := schemas[t]
	return ok
}

// ParseEntityType parses an entity type name
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEntityType, s)
	}
	return t, nil
}

// LocalID is the identity of a record in the local system
type LocalID int64

// RemoteID is the identity of a record in the remote system
type RemoteID int64

// String returns the decimal form of the local id
func (id LocalID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// String returns the decimal form of the remote id
func (id RemoteID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// LockKey returns the key used to serialize replication of one entity
func LockKey(t EntityType, id LocalID) string {
	return "replication:" + string(t) + ":" + id.String()
}
