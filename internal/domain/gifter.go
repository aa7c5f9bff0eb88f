package domain

import "context"

// Ledger sheet column names, in schema order. The first column is the key.
const (
	ColUserID       = "user_id"
	ColUserName     = "user_name"
	ColGiftedSubs   = "gifted_subs"
	ColRewardsGiven = "rewards_given"
)

// LedgerSchema is the column layout of a per-tenant gift ledger.
var LedgerSchema = []string{ColUserID, ColUserName, ColGiftedSubs, ColRewardsGiven}

// GiftEvent is a normalized gift-subscription notification from the platform.
// Total is the gifter's cumulative gifted-sub count to date.
type GiftEvent struct {
	UserID   string
	UserName string
	Total    int
}

// GifterUpdate is the payload of the update_gifters live event pushed to
// connected overlay clients.
type GifterUpdate struct {
	UserID       string `json:"user_id"`
	UserName     string `json:"user_name"`
	GiftedSubs   int    `json:"gifted_subs"`
	RewardsGiven int    `json:"rewards_given"`
}

// Row is a single sheet row addressed by its 1-based row number.
type Row struct {
	Number int
	Cells  map[string]string
}

// LedgerStore is the row-level contract of a tenant's gift ledger.
type LedgerStore interface {
	// Rows returns all data rows in sheet order. An empty ledger is valid.
	Rows(ctx context.Context) ([]Row, error)

	// FindRow returns the first row whose column equals value, or
	// ErrRowNotFound.
	FindRow(ctx context.Context, column, value string) (Row, error)

	// Upsert overwrites the row whose key column matches the supplied key
	// value, or appends a new row. The cell set must cover the schema
	// exactly, otherwise a *SchemaError is returned.
	Upsert(ctx context.Context, cells map[string]string) error

	// Schema returns the ordered column names.
	Schema() []string
}

// LedgerResolver maps a tenant id to its ledger, provisioning lazily.
type LedgerResolver interface {
	Resolve(ctx context.Context, tenantID string) (LedgerStore, error)
}

// UpdatePublisher pushes gifter updates to connected viewers. Delivery is
// fire-and-forget, at most once per handled notification.
type UpdatePublisher interface {
	PublishGifterUpdate(tenantID string, update GifterUpdate)
}
