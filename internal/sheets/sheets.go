// Package sheets mirrors attendance into a Google spreadsheet laid out as
// Instructor | Time In | Lab Number | Time Out.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"comlab-status-backend/config"
	"comlab-status-backend/internal/apperr"
	"comlab-status-backend/internal/attendance"
	"comlab-status-backend/internal/parse"
	"comlab-status-backend/internal/reconcile"
)

// CellLayout is how check-in and check-out times are written to the sheet.
const CellLayout = "2006-01-02 15:04:05"

var headerRow = []interface{}{"Instructor", "Time In", "Lab Number", "Time Out"}

// Client reads and writes the attendance spreadsheet.
type Client struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
	timeout       time.Duration
	loc           *time.Location
	log           zerolog.Logger

	mu  sync.Mutex
	tab string // resolved tab, "" until first use
}

var (
	_ attendance.Journal = (*Client)(nil)
	_ attendance.Source  = (*Client)(nil)
)

// NewFromCredentialsFile builds a Client authenticated with a service
// account key file.
func NewFromCredentialsFile(ctx context.Context, cfg config.SheetsConfig, loc *time.Location, log zerolog.Logger) (*Client, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read sheets credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse sheets credentials: %w", err)
	}
	return New(ctx, cfg, loc, log, option.WithCredentials(creds))
}

// New builds a Client from explicit client options.
func New(ctx context.Context, cfg config.SheetsConfig, loc *time.Location, log zerolog.Logger, opts ...option.ClientOption) (*Client, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	name := cfg.SheetName
	if name == "" {
		name = "Sheet1"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     name,
		timeout:       timeout,
		loc:           loc,
		log:           log.With().Str("component", "sheets").Logger(),
	}, nil
}

// Records returns every data row as a raw attendance record. When the
// configured tab is missing the first tab of the spreadsheet is used.
func (c *Client) Records(ctx context.Context) ([]reconcile.RawRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.getValues(ctx, "A1:D")
	if err != nil {
		return nil, apperr.Upstream("sheets.records", err, "attendance spreadsheet unavailable")
	}

	records := make([]reconcile.RawRecord, 0, len(resp.Values))
	for _, row := range resp.Values {
		if len(row) < 2 {
			continue
		}
		records = append(records, c.toRecord(row))
	}
	return records, nil
}

func (c *Client) toRecord(row []interface{}) reconcile.RawRecord {
	rec := reconcile.RawRecord{
		Instructor: strings.TrimSpace(cell(row, 0)),
		TimeIn:     cell(row, 1),
		LabNumber:  cell(row, 2),
		TimeOut:    cell(row, 3),
	}
	if rec.Instructor == "" {
		rec.Instructor = "Unknown"
	}
	if lab, err := parse.LabNumber(rec.LabNumber); err == nil {
		rec.LabNumber = lab
	}
	for _, raw := range []string{rec.TimeIn, rec.TimeOut} {
		if _, err := parse.Timestamp(raw, c.loc); err != nil && !errors.Is(err, parse.ErrBlank) {
			rec.Error = true
		}
	}
	return rec
}

// RecordCheckIn appends an open row for the event.
func (c *Client) RecordCheckIn(ctx context.Context, ev attendance.Event) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.ensureHeader(ctx); err != nil {
		return err
	}
	row := []interface{}{ev.Instructor, c.formatCell(ev.At), labCell(ev.LabNumber), ""}
	return c.appendRow(ctx, row)
}

// RecordCheckOut fills the time out of the first open row for the same
// instructor and lab, or appends a checkout-only row when none is open.
func (c *Client) RecordCheckOut(ctx context.Context, ev attendance.Event) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.ensureHeader(ctx); err != nil {
		return err
	}

	tab, err := c.resolveTab(ctx)
	if err != nil {
		return apperr.Upstream("sheets.checkout", err, "resolve attendance tab")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, tab+"!A2:D").Context(ctx).Do()
	if err != nil {
		return apperr.Upstream("sheets.checkout", err, "read attendance rows")
	}

	stamp := c.formatCell(ev.At)
	for i, row := range resp.Values {
		if cell(row, 0) == ev.Instructor && cell(row, 2) == labCell(ev.LabNumber) && strings.TrimSpace(cell(row, 3)) == "" {
			rng := fmt.Sprintf("%s!D%d", tab, i+2)
			vr := &sheets.ValueRange{Values: [][]interface{}{{stamp}}}
			if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
				ValueInputOption("RAW").Context(ctx).Do(); err != nil {
				return apperr.Upstream("sheets.checkout", err, "update time out")
			}
			return nil
		}
	}

	return c.appendRow(ctx, []interface{}{ev.Instructor, "", labCell(ev.LabNumber), stamp})
}

func (c *Client) ensureHeader(ctx context.Context) error {
	tab, err := c.resolveTab(ctx)
	if err != nil {
		return apperr.Upstream("sheets.header", err, "resolve attendance tab")
	}
	rng := tab + "!A1:D1"
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return apperr.Upstream("sheets.header", err, "read header row")
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) >= len(headerRow) {
		return nil
	}

	c.log.Info().Str("sheet", tab).Msg("writing header row")
	vr := &sheets.ValueRange{Values: [][]interface{}{headerRow}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return apperr.Upstream("sheets.header", err, "write header row")
	}
	return nil
}

func (c *Client) appendRow(ctx context.Context, row []interface{}) error {
	tab, err := c.resolveTab(ctx)
	if err != nil {
		return apperr.Upstream("sheets.append", err, "resolve attendance tab")
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{row}}
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, tab+"!A2:D", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return apperr.Upstream("sheets.append", err, "append attendance row")
	}
	return nil
}

// getValues reads a range of the resolved tab. A tab renamed or deleted since
// it was resolved is resolved again once.
func (c *Client) getValues(ctx context.Context, a1 string) (*sheets.ValueRange, error) {
	tab, err := c.resolveTab(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, tab+"!"+a1).Context(ctx).Do()
	if !isMissingRange(err) {
		return resp, err
	}
	c.forgetTab(tab)
	if tab, err = c.resolveTab(ctx); err != nil {
		return nil, err
	}
	return c.svc.Spreadsheets.Values.Get(c.spreadsheetID, tab+"!"+a1).Context(ctx).Do()
}

// resolveTab returns the tab every read and write goes to: the configured
// one, or the first tab when the spreadsheet has none by that name.
func (c *Client) resolveTab(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tab != "" {
		return c.tab, nil
	}

	meta, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	var first string
	for _, sh := range meta.Sheets {
		if sh.Properties == nil {
			continue
		}
		if sh.Properties.Title == c.sheetName {
			c.tab = c.sheetName
			return c.tab, nil
		}
		if first == "" {
			first = sh.Properties.Title
		}
	}
	if first == "" {
		return "", errors.New("spreadsheet has no tabs")
	}
	c.log.Warn().Str("sheet", c.sheetName).Str("using", first).Msg("sheet not found, falling back to the first tab")
	c.tab = first
	return c.tab, nil
}

func (c *Client) forgetTab(tab string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tab == tab {
		c.tab = ""
	}
}

func (c *Client) formatCell(t time.Time) string {
	return t.In(c.loc).Format(CellLayout)
}

func labCell(labNumber string) string {
	return "Lab " + labNumber
}

func cell(row []interface{}, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	return fmt.Sprint(row[i])
}

// isMissingRange reports whether the API rejected the tab name.
func isMissingRange(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == http.StatusNotFound ||
		(gerr.Code == http.StatusBadRequest && strings.Contains(gerr.Message, "Unable to parse range"))
}
