package sheets

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brandondunbar/GiftSubTracker/internal/domain"
	"google.golang.org/api/drive/v3"
)

const spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"

// Provisioner creates the spreadsheet backing a new tenant ledger and writes
// its header row, returning the new spreadsheet id.
type Provisioner interface {
	CreateLedger(ctx context.Context, tenantID string) (string, error)
}

type driveProvisioner struct {
	drive  *drive.Service
	values ValuesAPI
}

func (p *driveProvisioner) CreateLedger(ctx context.Context, tenantID string) (string, error) {
	file, err := p.drive.Files.Create(&drive.File{
		Name:     fmt.Sprintf("%s_sheet", tenantID),
		MimeType: spreadsheetMimeType,
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("%w: drive create for tenant %s: %v", domain.ErrUpstreamUnavailable, tenantID, err)
	}

	ledger := NewSheet(p.values, file.Id, domain.LedgerSchema)
	if err := ledger.WriteHeader(ctx); err != nil {
		return "", fmt.Errorf("failed to write ledger header: %w", err)
	}

	slog.Info("Provisioned ledger spreadsheet", "tenant_id", tenantID, "spreadsheet_id", file.Id)
	return file.Id, nil
}
