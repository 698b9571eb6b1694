package report

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const spreadsheetsScope = "https://www.googleapis.com/auth/spreadsheets"

// spreadsheetAPI is the part of the Sheets service the exporter needs.
type spreadsheetAPI interface {
	Create(ctx context.Context, spreadsheet *sheets.Spreadsheet) (*sheets.Spreadsheet, error)
	BatchUpdate(ctx context.Context, spreadsheetID string, req *sheets.BatchUpdateValuesRequest) error
}

type googleSheets struct {
	srv *sheets.Service
}

func (g googleSheets) Create(ctx context.Context, spreadsheet *sheets.Spreadsheet) (*sheets.Spreadsheet, error) {
	return g.srv.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
}

func (g googleSheets) BatchUpdate(ctx context.Context, spreadsheetID string, req *sheets.BatchUpdateValuesRequest) error {
	_, err := g.srv.Spreadsheets.Values.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	return err
}

// SheetsExporter writes workbooks to new Google Spreadsheets using a
// service account.
type SheetsExporter struct {
	api    spreadsheetAPI
	logger *logrus.Logger
}

// NewSheetsExporter authenticates with a service account key, given either
// inline as JSON or as a path to a key file.
func NewSheetsExporter(ctx context.Context, credentialsFile string, credentialsJSON []byte, logger *logrus.Logger) (*SheetsExporter, error) {
	if logger == nil {
		logger = logrus.New()
	}

	credBytes := credentialsJSON
	if len(credBytes) == 0 {
		if credentialsFile == "" {
			return nil, errors.New("sheets export requires service account credentials")
		}
		var err error
		credBytes, err = os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheets credentials: %w", err)
		}
	}

	jwtConfig, err := google.JWTConfigFromJSON(credBytes, spreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to get config from json: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &SheetsExporter{api: googleSheets{srv: srv}, logger: logger}, nil
}

// Export creates a spreadsheet holding every sheet of wb and returns its URL.
func (e *SheetsExporter) Export(ctx context.Context, wb Workbook) (string, error) {
	spreadsheet := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: wb.Title},
	}
	for _, s := range wb.Sheets {
		spreadsheet.Sheets = append(spreadsheet.Sheets, &sheets.Sheet{
			Properties: &sheets.SheetProperties{Title: s.Title},
		})
	}

	created, err := e.api.Create(ctx, spreadsheet)
	if err != nil {
		return "", fmt.Errorf("failed to create spreadsheet: %w", err)
	}

	req := &sheets.BatchUpdateValuesRequest{ValueInputOption: "USER_ENTERED"}
	for _, s := range wb.Sheets {
		req.Data = append(req.Data, &sheets.ValueRange{
			Range:  fmt.Sprintf("'%s'!A1", s.Title),
			Values: s.Rows,
		})
	}
	if err := e.api.BatchUpdate(ctx, created.SpreadsheetId, req); err != nil {
		return "", fmt.Errorf("failed to write spreadsheet %s: %w", created.SpreadsheetId, err)
	}

	e.logger.WithFields(logrus.Fields{
		"spreadsheet_id": created.SpreadsheetId,
		"sheets":         len(wb.Sheets),
	}).Info("Exported workbook to Google Sheets")
	return created.SpreadsheetUrl, nil
}
