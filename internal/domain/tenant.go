package domain

// Reference sheet column names. One row per known tenant, never mutated.
const (
	RefColTenantID = "user_id"
	RefColLedgerID = "sheet_id"
)

// ReferenceSchema is the column layout of the singleton reference sheet.
var ReferenceSchema = []string{RefColTenantID, RefColLedgerID}

// TenantReference links a broadcaster to the spreadsheet backing its ledger.
type TenantReference struct {
	TenantID string
	LedgerID string
}
