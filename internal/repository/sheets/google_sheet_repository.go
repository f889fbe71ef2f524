package sheets

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/mamadbah2/lambtrial/internal/config"
)

// Repository defines the spreadsheet operations used by the export.
type Repository interface {
	// ReplaceSheet overwrites the content of the named tab with rows,
	// creating the tab when it does not exist.
	ReplaceSheet(ctx context.Context, sheet string, rows [][]interface{}) error
}

// GoogleSheetRepository implements the Repository interface using the official Google Sheets API.
type GoogleSheetRepository struct {
	service       *sheetsapi.Service
	spreadsheetID string
	logger        *zap.Logger
}

// NewGoogleSheetRepository builds a Google Sheets backed repository instance.
func NewGoogleSheetRepository(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*GoogleSheetRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	return &GoogleSheetRepository{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		logger:        logger,
	}, nil
}

// ReplaceSheet clears the tab and writes rows starting at A1.
func (r *GoogleSheetRepository) ReplaceSheet(ctx context.Context, sheet string, rows [][]interface{}) error {
	if sheet == "" {
		return fmt.Errorf("sheet must not be empty")
	}

	if err := r.ensureSheet(ctx, sheet); err != nil {
		return err
	}

	if _, err := r.service.Spreadsheets.Values.Clear(r.spreadsheetID, sheet, &sheetsapi.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet %s: %w", sheet, err)
	}

	payload := &sheetsapi.ValueRange{Values: rows}
	call := r.service.Spreadsheets.Values.Update(r.spreadsheetID, sheet+"!A1", payload).
		ValueInputOption("USER_ENTERED").
		Context(ctx)

	if _, err := call.Do(); err != nil {
		return fmt.Errorf("write sheet %s: %w", sheet, err)
	}

	r.logger.Debug("sheet replaced", zap.String("sheet", sheet), zap.Int("rows", len(rows)))
	return nil
}

func (r *GoogleSheetRepository) ensureSheet(ctx context.Context, sheet string) error {
	spreadsheet, err := r.service.Spreadsheets.Get(r.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, s := range spreadsheet.Sheets {
		if s.Properties != nil && s.Properties.Title == sheet {
			return nil
		}
	}

	req := &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsapi.Request{{
			AddSheet: &sheetsapi.AddSheetRequest{
				Properties: &sheetsapi.SheetProperties{Title: sheet},
			},
		}},
	}
	if _, err := r.service.Spreadsheets.BatchUpdate(r.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", sheet, err)
	}
	r.logger.Info("sheet created", zap.String("sheet", sheet))
	return nil
}
