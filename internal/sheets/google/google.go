// Package google mirrors incomes and expenses into a Google spreadsheet,
// one tab per collection, one row per entry keyed by the entry ID in column A.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"revenue/internal/core"
	applog "revenue/internal/log"
)

const (
	IncomeSheet  = "Incomes"
	ExpenseSheet = "Expenses"

	// RAW stores cells as given; user text is never parsed as a formula,
	// number or date.
	valueInput = "RAW"
)

var header = []any{"ID", "Owner", "Date", "Description", "Amount"}

var ErrMissingCredentials = errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")

type Config struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
}

type Mirror struct {
	svc           *gsheet.Service
	spreadsheetID string
	logger        *applog.Logger

	mu       sync.Mutex
	sheetIDs map[string]int64
}

// New builds a mirror authenticated with a service account.
func New(ctx context.Context, cfg Config, logger *applog.Logger) (*Mirror, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	credentials, err := readCredentials(cfg)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, logger), nil
}

// NewWithService wraps an already configured Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID string, logger *applog.Logger) *Mirror {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Mirror{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		logger:        logger.WithComponent(applog.ComponentSheets),
		sheetIDs:      make(map[string]int64),
	}
}

func readCredentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, ErrMissingCredentials
	}
}

func sheetFor(kind core.Kind) (string, error) {
	switch kind {
	case core.Income:
		return IncomeSheet, nil
	case core.Expense:
		return ExpenseSheet, nil
	default:
		return "", core.ErrInvalidKind
	}
}

// EnsureSheets creates the Incomes and Expenses tabs with their header row
// when they are missing.
func (m *Mirror) EnsureSheets(ctx context.Context) error {
	if err := m.loadSheetIDs(ctx); err != nil {
		return err
	}

	var missing []string
	m.mu.Lock()
	for _, title := range []string{IncomeSheet, ExpenseSheet} {
		if _, ok := m.sheetIDs[title]; !ok {
			missing = append(missing, title)
		}
	}
	m.mu.Unlock()
	if len(missing) == 0 {
		return nil
	}

	requests := make([]*gsheet.Request, 0, len(missing))
	for _, title := range missing {
		requests = append(requests, &gsheet.Request{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		})
	}
	resp, err := m.svc.Spreadsheets.BatchUpdate(m.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add sheets %v: %w", missing, err)
	}

	m.mu.Lock()
	for _, reply := range resp.Replies {
		if reply == nil || reply.AddSheet == nil || reply.AddSheet.Properties == nil {
			continue
		}
		p := reply.AddSheet.Properties
		m.sheetIDs[p.Title] = p.SheetId
	}
	m.mu.Unlock()

	for _, title := range missing {
		rng := fmt.Sprintf("%s!A1:E1", title)
		_, err := m.svc.Spreadsheets.Values.Update(m.spreadsheetID, rng, &gsheet.ValueRange{
			Values: [][]any{header},
		}).ValueInputOption(valueInput).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("write header %s: %w", title, err)
		}
		m.logger.InfoContext(ctx, "Created mirror sheet", "sheet", title)
	}
	return nil
}

// Upsert writes e into the row holding its ID, appending a new row when
// the ID is not in the sheet yet.
func (m *Mirror) Upsert(ctx context.Context, e core.Entry) error {
	title, err := sheetFor(e.Kind)
	if err != nil {
		return err
	}

	ids, err := m.readIDs(ctx, title)
	if err != nil {
		return err
	}
	values := &gsheet.ValueRange{Values: [][]any{entryRow(e)}}

	if idx := findRow(ids, e.ID); idx >= 0 {
		rng := fmt.Sprintf("%s!A%d:E%d", title, idx+1, idx+1)
		_, err := m.svc.Spreadsheets.Values.Update(m.spreadsheetID, rng, values).
			ValueInputOption(valueInput).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("update %s: %w", rng, err)
		}
		m.logger.DebugContext(ctx, "Updated mirror row", "sheet", title, applog.FieldEntryID, e.ID, "row", idx+1)
		return nil
	}

	rng := fmt.Sprintf("%s!A:E", title)
	_, err = m.svc.Spreadsheets.Values.Append(m.spreadsheetID, rng, values).
		ValueInputOption(valueInput).InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append %s: %w", rng, err)
	}
	m.logger.DebugContext(ctx, "Appended mirror row", "sheet", title, applog.FieldEntryID, e.ID)
	return nil
}

// Remove deletes the row holding id. A missing row is not an error.
func (m *Mirror) Remove(ctx context.Context, kind core.Kind, id string) error {
	title, err := sheetFor(kind)
	if err != nil {
		return err
	}

	ids, err := m.readIDs(ctx, title)
	if err != nil {
		return err
	}
	idx := findRow(ids, id)
	if idx < 0 {
		return nil
	}

	sheetID, err := m.sheetID(ctx, title)
	if err != nil {
		return err
	}
	_, err = m.svc.Spreadsheets.BatchUpdate(m.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(idx),
					EndIndex:   int64(idx + 1),
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("delete row %d of %s: %w", idx+1, title, err)
	}
	m.logger.DebugContext(ctx, "Removed mirror row", "sheet", title, applog.FieldEntryID, id, "row", idx+1)
	return nil
}

func (m *Mirror) readIDs(ctx context.Context, title string) ([]string, error) {
	rng := fmt.Sprintf("%s!A:A", title)
	resp, err := m.svc.Spreadsheets.Values.Get(m.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return firstColumn(resp.Values), nil
}

func (m *Mirror) sheetID(ctx context.Context, title string) (int64, error) {
	m.mu.Lock()
	id, ok := m.sheetIDs[title]
	m.mu.Unlock()
	if ok {
		return id, nil
	}

	if err := m.loadSheetIDs(ctx); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok = m.sheetIDs[title]
	if !ok {
		return 0, fmt.Errorf("sheet %q not found in spreadsheet", title)
	}
	return id, nil
}

func (m *Mirror) loadSheetIDs(ctx context.Context) error {
	resp, err := m.svc.Spreadsheets.Get(m.spreadsheetID).
		Fields("sheets.properties(sheetId,title)").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet metadata: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sh := range resp.Sheets {
		if sh == nil || sh.Properties == nil {
			continue
		}
		m.sheetIDs[sh.Properties.Title] = sh.Properties.SheetId
	}
	return nil
}

// entryRow renders e as a sheet row. The amount is a number so sheet
// formulas can sum the column.
func entryRow(e core.Entry) []any {
	return []any{e.ID, e.OwnerID, core.NormalizeDate(e.Date), e.Description, e.Amount.Decimal().InexactFloat64()}
}

func firstColumn(rows [][]any) []string {
	out := make([]string, len(rows))
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		out[i] = strings.TrimSpace(fmt.Sprint(row[0]))
	}
	return out
}

// findRow returns the zero-based row index holding id, or -1.
func findRow(ids []string, id string) int {
	if id == "" {
		return -1
	}
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
