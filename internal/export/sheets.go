// Package export writes a finance snapshot to a Google spreadsheet.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finsession/internal/core"
	"finsession/internal/log"
)

type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

// Data is what one export writes.
type Data struct {
	Accounts     []core.Account
	Transactions []core.Transaction
	Categories   []core.Category
	At           time.Time
}

type Result struct {
	TransactionsRange string
	AccountsRange     string
	Rows              int
}

type SheetsExporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

// NewSheetsExporter builds an exporter authenticated with a service account.
func NewSheetsExporter(ctx context.Context, cfg Config, logger *log.Logger) (*SheetsExporter, error) {
	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newSheetsExporter(svc, cfg, logger)
}

func newSheetsExporter(svc *gsheet.Service, cfg Config, logger *log.Logger) (*SheetsExporter, error) {
	id := strings.TrimSpace(cfg.SpreadsheetID)
	if id == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	name := strings.TrimSpace(cfg.SheetName)
	if name == "" {
		name = "Transactions"
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SheetsExporter{
		svc:           svc,
		spreadsheetID: id,
		sheetName:     name,
		logger:        logger.WithComponent(log.ComponentExport),
	}, nil
}

func credentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.ServiceAccountJSON) != "":
		return []byte(cfg.ServiceAccountJSON), nil
	case strings.TrimSpace(cfg.ServiceAccountFile) != "":
		b, err := os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// Export replaces the month's transactions sheet and the accounts sheet
// with the rows built from d.
func (e *SheetsExporter) Export(ctx context.Context, d Data) (Result, error) {
	if d.At.IsZero() {
		d.At = time.Now()
	}
	txSheet := monthSheetName(e.sheetName, d.At)
	accSheet := e.sheetName + " Accounts"

	txRows := TransactionRows(d.Transactions, d.Categories)
	accRows := AccountRows(d.Accounts)

	txRange, err := e.replace(ctx, txSheet, txRows)
	if err != nil {
		return Result{}, err
	}
	accRange, err := e.replace(ctx, accSheet, accRows)
	if err != nil {
		return Result{}, err
	}

	e.logger.InfoContext(ctx, "Snapshot exported",
		log.FieldOperation, log.OpExport,
		"transactions", len(d.Transactions),
		"accounts", len(d.Accounts),
		"sheet", txSheet)

	return Result{
		TransactionsRange: txRange,
		AccountsRange:     accRange,
		Rows:              len(txRows) + len(accRows),
	}, nil
}

func (e *SheetsExporter) replace(ctx context.Context, sheet string, rows [][]any) (string, error) {
	all := fmt.Sprintf("%s!A:Z", sheet)
	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, all, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", all, err)
	}
	rng := fmt.Sprintf("%s!A1", sheet)
	vr := &gsheet.ValueRange{Values: rows}
	resp, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", rng, err)
	}
	if resp.UpdatedRange != "" {
		return resp.UpdatedRange, nil
	}
	return rng, nil
}
