package enums

import "fmt"

// AuditEntity names the table an audit entry refers to.
type AuditEntity string

const (
	AuditEntityUsers      AuditEntity = "users"
	AuditEntityCustomers  AuditEntity = "customers"
	AuditEntityCategories AuditEntity = "categories"
	AuditEntityProducts   AuditEntity = "products"
	AuditEntityCarts      AuditEntity = "carts"
	AuditEntityCartLines  AuditEntity = "cart_lines"
	AuditEntityOrders     AuditEntity = "orders"
	AuditEntityOrderLines AuditEntity = "order_lines"
)

var validAuditEntities = []AuditEntity{
	AuditEntityUsers,
	AuditEntityCustomers,
	AuditEntityCategories,
	AuditEntityProducts,
	AuditEntityCarts,
	AuditEntityCartLines,
	AuditEntityOrders,
	AuditEntityOrderLines,
}

// String implements fmt.Stringer.
func (a AuditEntity) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AuditEntity.
func (a AuditEntity) IsValid() bool {
	for _, candidate := range validAuditEntities {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAuditEntity converts raw input into an AuditEntity.
func ParseAuditEntity(value string) (AuditEntity, error) {
	for _, candidate := range validAuditEntities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit entity %q", value)
}
