package persistence

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"watchdash/internal/models"
)

// csvHeader is the persisted layout, one record per row.
var csvHeader = []string{
	"symbol", "entry_date", "entry_price", "run_high", "took_half",
	"closed", "close_date", "close_price", "round", "quantity",
}

// legacyColumns maps the column names of the older positions file onto the current layout.
var legacyColumns = map[string]string{
	"round_no":     "round",
	"closed_date":  "close_date",
	"closed_price": "close_price",
}

// csvRepository stores the record set as a CSV file, replaced atomically on every save.
type csvRepository struct {
	path string
}

// NewCSVRepository returns a repository backed by the CSV file at path.
// The file and its directory are created on the first save.
func NewCSVRepository(path string) (PositionRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("persistence: csv path is empty")
	}
	return &csvRepository{path: path}, nil
}

func (r *csvRepository) LoadPositions() ([]models.Position, error) {
	f, err := os.Open(r.path)
	if os.IsNotExist(err) {
		return []models.Position{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.path, err)
	}
	if len(records) == 0 {
		return []models.Position{}, nil
	}

	cols := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		name = strings.ToLower(strings.TrimSpace(name))
		if alias, ok := legacyColumns[name]; ok {
			name = alias
		}
		cols[name] = i
	}
	if _, ok := cols["symbol"]; !ok {
		return nil, fmt.Errorf("%s: missing symbol column", r.path)
	}

	positions := make([]models.Position, 0, len(records)-1)
	for line, rec := range records[1:] {
		get := func(col string) string {
			i, ok := cols[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		if get("symbol") == "" {
			continue
		}
		p, err := parsePositionRow(get)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", r.path, line+2, err)
		}
		positions = append(positions, p)
	}
	return positions, nil
}

func parsePositionRow(get func(string) string) (models.Position, error) {
	p := models.Position{
		Symbol:    get("symbol"),
		EntryDate: get("entry_date"),
	}

	entry, err := parseOptionalFloat(get("entry_price"))
	if err != nil {
		return p, fmt.Errorf("entry_price: %w", err)
	}
	if entry != nil {
		p.EntryPrice = *entry
	}

	runHigh, err := parseOptionalFloat(get("run_high"))
	if err != nil {
		return p, fmt.Errorf("run_high: %w", err)
	}
	if runHigh != nil {
		p.RunHigh = *runHigh
	} else {
		p.RunHigh = p.EntryPrice
	}

	if p.TookHalf, err = parseOptionalBool(get("took_half")); err != nil {
		return p, fmt.Errorf("took_half: %w", err)
	}
	if p.Closed, err = parseOptionalBool(get("closed")); err != nil {
		return p, fmt.Errorf("closed: %w", err)
	}
	if d := get("close_date"); d != "" && !isNaN(d) {
		p.CloseDate = &d
	}
	if p.ClosePrice, err = parseOptionalFloat(get("close_price")); err != nil {
		return p, fmt.Errorf("close_price: %w", err)
	}
	if p.Quantity, err = parseOptionalFloat(get("quantity")); err != nil {
		return p, fmt.Errorf("quantity: %w", err)
	}

	round, err := parseOptionalFloat(get("round"))
	if err != nil {
		return p, fmt.Errorf("round: %w", err)
	}
	if round != nil {
		p.Round = int(*round)
	}
	return p, nil
}

func isNaN(s string) bool {
	return strings.EqualFold(s, "nan")
}

func parseOptionalFloat(s string) (*float64, error) {
	if s == "" || isNaN(s) {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) {
		return nil, nil
	}
	return &v, nil
}

func parseOptionalBool(s string) (bool, error) {
	if s == "" || isNaN(s) {
		return false, nil
	}
	return strconv.ParseBool(s)
}

// SavePositions writes to a temporary file, syncs it, then renames it over the target.
func (r *csvRepository) SavePositions(positions []models.Position) error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		return err
	}
	for _, p := range positions {
		if err := w.Write(formatPositionRow(p)); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("write positions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync positions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace %s: %w", r.path, err)
	}
	return nil
}

func formatPositionRow(p models.Position) []string {
	return []string{
		p.Symbol,
		p.EntryDate,
		formatFloat(p.EntryPrice),
		formatFloat(p.RunHigh),
		formatBool(p.TookHalf),
		formatBool(p.Closed),
		derefString(p.CloseDate),
		formatOptionalFloat(p.ClosePrice),
		strconv.Itoa(p.Round),
		formatOptionalFloat(p.Quantity),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

// formatBool writes True/False so the file stays readable by pandas-based tooling.
func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *csvRepository) Close() error {
	return nil
}
