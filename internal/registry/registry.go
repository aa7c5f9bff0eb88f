// Package registry maps broadcaster ids to their gift ledgers, provisioning a
// new spreadsheet the first time a tenant is seen.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/brandondunbar/GiftSubTracker/internal/adapter/sheets"
	"github.com/brandondunbar/GiftSubTracker/internal/domain"
	"github.com/brandondunbar/GiftSubTracker/internal/platform/logging"
	"golang.org/x/sync/singleflight"
)

// Registry resolves tenant ids to ledger handles. The in-memory map is a
// cache over the reference sheet, which stays the durable source of truth.
// First-time provisioning for a tenant runs at most once at a time via a
// single-flight group keyed by tenant id; different tenants never block each
// other.
type Registry struct {
	api         sheets.ValuesAPI
	provisioner sheets.Provisioner
	reference   *sheets.Sheet

	mu      sync.RWMutex
	ledgers map[string]*sheets.Sheet
	group   singleflight.Group

	onProvision func(tenantID string)
}

// New builds a Registry over the given reference spreadsheet, validates the
// reference schema, and primes the cache from it.
func New(ctx context.Context, api sheets.ValuesAPI, provisioner sheets.Provisioner, referenceSpreadsheetID string) (*Registry, error) {
	reference := sheets.NewSheet(api, referenceSpreadsheetID, domain.ReferenceSchema)
	if err := reference.ValidateSchema(ctx); err != nil {
		return nil, fmt.Errorf("reference sheet: %w", err)
	}

	r := &Registry{
		api:         api,
		provisioner: provisioner,
		reference:   reference,
		ledgers:     make(map[string]*sheets.Sheet),
	}

	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// OnProvision registers a callback invoked after each new ledger is
// provisioned. Used for metrics.
func (r *Registry) OnProvision(fn func(tenantID string)) { r.onProvision = fn }

// Resolve returns the ledger for a tenant. Cache hit returns immediately;
// otherwise the reference sheet is consulted, and if the tenant is unknown a
// new ledger is provisioned and a reference row appended.
func (r *Registry) Resolve(ctx context.Context, tenantID string) (domain.LedgerStore, error) {
	r.mu.RLock()
	ledger, ok := r.ledgers[tenantID]
	r.mu.RUnlock()
	if ok {
		return ledger, nil
	}

	v, err, _ := r.group.Do(tenantID, func() (any, error) {
		return r.resolveSlow(ctx, tenantID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*sheets.Sheet), nil
}

func (r *Registry) resolveSlow(ctx context.Context, tenantID string) (*sheets.Sheet, error) {
	// A concurrent caller may have resolved while we waited on the group.
	r.mu.RLock()
	ledger, ok := r.ledgers[tenantID]
	r.mu.RUnlock()
	if ok {
		return ledger, nil
	}

	row, err := r.reference.FindRow(ctx, domain.RefColTenantID, tenantID)
	switch {
	case err == nil:
		return r.cacheLedger(tenantID, row.Cells[domain.RefColLedgerID]), nil
	case errors.Is(err, domain.ErrRowNotFound):
		return r.provision(ctx, tenantID)
	default:
		return nil, err
	}
}

func (r *Registry) provision(ctx context.Context, tenantID string) (*sheets.Sheet, error) {
	spreadsheetID, err := r.provisioner.CreateLedger(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	err = r.reference.Upsert(ctx, map[string]string{
		domain.RefColTenantID: tenantID,
		domain.RefColLedgerID: spreadsheetID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record tenant reference: %w", err)
	}

	logging.WithTenant(tenantID).Info("Registered new tenant", "spreadsheet_id", spreadsheetID)
	if r.onProvision != nil {
		r.onProvision(tenantID)
	}
	return r.cacheLedger(tenantID, spreadsheetID), nil
}

func (r *Registry) cacheLedger(tenantID, spreadsheetID string) *sheets.Sheet {
	ledger := sheets.NewSheet(r.api, spreadsheetID, domain.LedgerSchema)
	r.mu.Lock()
	r.ledgers[tenantID] = ledger
	r.mu.Unlock()
	return ledger
}

// Refresh re-reads the reference sheet and rebuilds the cache. Used when an
// external actor may have added tenants out-of-band.
func (r *Registry) Refresh(ctx context.Context) error {
	rows, err := r.reference.Rows(ctx)
	if err != nil {
		return fmt.Errorf("failed to read reference sheet: %w", err)
	}

	ledgers := make(map[string]*sheets.Sheet, len(rows))
	for _, row := range rows {
		tenantID := row.Cells[domain.RefColTenantID]
		spreadsheetID := row.Cells[domain.RefColLedgerID]
		if tenantID == "" || spreadsheetID == "" {
			slog.Warn("Skipping incomplete reference row", "row", row.Number)
			continue
		}
		ledgers[tenantID] = sheets.NewSheet(r.api, spreadsheetID, domain.LedgerSchema)
	}

	r.mu.Lock()
	r.ledgers = ledgers
	r.mu.Unlock()
	return nil
}

// Ping verifies the reference sheet is reachable. Used by readiness checks.
func (r *Registry) Ping(ctx context.Context) error {
	_, err := r.reference.Rows(ctx)
	return err
}
