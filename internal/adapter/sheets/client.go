// Package sheets adapts Google Sheets to the ledger store contract.
//
// The row semantics (find/upsert/schema validation) live in Sheet; this file
// owns service construction and the outbound call boundary. Every Sheets API
// call goes through a circuit breaker and maps transport failures to
// domain.ErrUpstreamUnavailable. No retries.
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brandondunbar/GiftSubTracker/internal/domain"
	"github.com/sony/gobreaker"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

const valueInputOption = "USER_ENTERED"

// ValuesAPI is the narrow surface of the Sheets values API the adapter needs.
// Production wraps the real service; tests supply an in-memory grid.
type ValuesAPI interface {
	Get(ctx context.Context, spreadsheetID, readRange string) ([][]string, error)
	Update(ctx context.Context, spreadsheetID, writeRange string, rows [][]string) error
	Append(ctx context.Context, spreadsheetID, writeRange string, rows [][]string) error
}

// Client bundles the authenticated Sheets and Drive services.
type Client struct {
	values      ValuesAPI
	provisioner Provisioner
}

// NewClient authenticates with a service account credentials file and builds
// the Sheets and Drive services. Fatal at startup if either fails.
func NewClient(ctx context.Context, credentialsPath string) (*Client, error) {
	sheetsSvc, err := gsheets.NewService(ctx,
		option.WithCredentialsFile(credentialsPath),
		option.WithScopes(gsheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build sheets service: %w", err)
	}

	driveSvc, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsPath),
		option.WithScopes(drive.DriveScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build drive service: %w", err)
	}

	values := &googleValues{svc: sheetsSvc, breaker: newBreaker()}
	return &Client{
		values:      values,
		provisioner: &driveProvisioner{drive: driveSvc, values: values},
	}, nil
}

func (c *Client) Values() ValuesAPI { return c.values }

func (c *Client) Provisioner() Provisioner { return c.provisioner }

func newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "sheets",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
		},
	})
}

// googleValues implements ValuesAPI against the real Sheets service.
type googleValues struct {
	svc     *gsheets.Service
	breaker *gobreaker.CircuitBreaker
}

func (g *googleValues) Get(ctx context.Context, spreadsheetID, readRange string) ([][]string, error) {
	result, err := g.breaker.Execute(func() (any, error) {
		return g.svc.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: sheets get %s: %v", domain.ErrUpstreamUnavailable, readRange, err)
	}
	return fromCells(result.(*gsheets.ValueRange).Values), nil
}

func (g *googleValues) Update(ctx context.Context, spreadsheetID, writeRange string, rows [][]string) error {
	body := &gsheets.ValueRange{Values: toCells(rows)}
	_, err := g.breaker.Execute(func() (any, error) {
		return g.svc.Spreadsheets.Values.
			Update(spreadsheetID, writeRange, body).
			ValueInputOption(valueInputOption).
			Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("%w: sheets update %s: %v", domain.ErrUpstreamUnavailable, writeRange, err)
	}
	return nil
}

func (g *googleValues) Append(ctx context.Context, spreadsheetID, writeRange string, rows [][]string) error {
	body := &gsheets.ValueRange{Values: toCells(rows)}
	_, err := g.breaker.Execute(func() (any, error) {
		return g.svc.Spreadsheets.Values.
			Append(spreadsheetID, writeRange, body).
			ValueInputOption(valueInputOption).
			Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("%w: sheets append %s: %v", domain.ErrUpstreamUnavailable, writeRange, err)
	}
	return nil
}

func toCells(rows [][]string) [][]any {
	cells := make([][]any, len(rows))
	for i, row := range rows {
		cells[i] = make([]any, len(row))
		for j, v := range row {
			cells[i][j] = v
		}
	}
	return cells
}

func fromCells(cells [][]any) [][]string {
	rows := make([][]string, len(cells))
	for i, row := range cells {
		rows[i] = make([]string, len(row))
		for j, v := range row {
			rows[i][j] = fmt.Sprint(v)
		}
	}
	return rows
}
