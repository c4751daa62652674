package persistence

import "strings"

// ValidateSortOrder normalizes orderDir to ASC or DESC, defaulting to DESC
func ValidateSortOrder(orderDir string) string {
	if strings.EqualFold(strings.TrimSpace(orderDir), "asc") {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField returns sortField when it is whitelisted in allowed,
// defaultField otherwise. The result is safe to interpolate into ORDER BY.
func ValidateSortField(sortField string, allowed map[string]bool, defaultField string) string {
	field := strings.TrimSpace(sortField)
	if field != "" && allowed[field] {
		return field
	}
	return defaultField
}

// CommissionRecordSortFields are the commission_records columns a listing may order by
var CommissionRecordSortFields = map[string]bool{
	"id":                true,
	"created_at":        true,
	"updated_at":        true,
	"partner_id":        true,
	"partner_name":      true,
	"fiscal_year_name":  true,
	"company_id":        true,
	"state":             true,
	"commission_amount": true,
	"total_purchase":    true,
	"total_invoiced":    true,
	"total_paid":        true,
	"total_due":         true,
	"payment_date":      true,
}
