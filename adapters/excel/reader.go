package excel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"photonlag/domain/core"
	"photonlag/domain/photon"
	"photonlag/internal"
	"photonlag/internal/errors"
)

// TableData is one sheet or CSV file as header-keyed string cells
type TableData struct {
	Headers []string
	Rows    []map[string]string
}

// DataReader handles reading Excel and CSV event tables
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	config   ReaderConfig
	logger   *internal.Logger
}

// NewDataReader creates a reader that handles both Excel and CSV files
func NewDataReader(filePath string, config ReaderConfig) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &DataReader{
		filePath: filePath,
		fileType: fileType,
		config:   config,
		logger:   internal.DefaultLogger.WithComponent("reader"),
	}
}

// ReadData reads the file into string rows keyed by header
func (r *DataReader) ReadData() (*TableData, error) {
	r.logger.Debug("reading %s file: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	switch r.fileType {
	case "csv":
		return r.readCSVData()
	case "xlsx":
		return r.readExcelData()
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
}

func (r *DataReader) readExcelData() (*TableData, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := r.config.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.InvalidSchema(fmt.Sprintf("%s has no sheets", r.filePath))
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	r.logger.Debug("sheet %s read in %.2fms (%d rows)", sheet, float64(time.Since(startTime).Nanoseconds())/1e6, len(rows))

	if len(rows) < 2 {
		return nil, errors.InvalidSchema("Excel file must have at least a header row and one data row")
	}
	return r.processRows(rows)
}

func (r *DataReader) readCSVData() (*TableData, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}

	if len(rows) < 2 {
		return nil, errors.InvalidSchema("CSV file must have at least a header row and one data row")
	}
	return r.processRows(rows)
}

// processRows converts raw string rows into TableData
func (r *DataReader) processRows(rows [][]string) (*TableData, error) {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.TrimSpace(header)
	}

	var dataRows []map[string]string
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		rowData := make(map[string]string)
		blank := true
		for j, cell := range row {
			if j < len(headers) {
				v := strings.TrimSpace(cell)
				rowData[headers[j]] = v
				if v != "" {
					blank = false
				}
			}
		}
		if blank && r.config.SkipBlank {
			continue
		}
		dataRows = append(dataRows, rowData)
	}

	r.logger.Debug("%s file processed (%d columns, %d rows)", strings.ToUpper(r.fileType), len(headers), len(dataRows))

	return &TableData{
		Headers: headers,
		Rows:    dataRows,
	}, nil
}

// ToRawTable parses every cell as a float. Empty cells are left out of the
// record so the schema adapter reports them as missing columns. A cell
// that is present but not numeric is an InvalidSchema error naming the row.
func (d *TableData) ToRawTable(instrument core.InstrumentID, schema string) (photon.RawTable, error) {
	records := make([]photon.RawRecord, 0, len(d.Rows))
	for i, row := range d.Rows {
		rec := make(photon.RawRecord, len(row))
		for col, cell := range row {
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return photon.RawTable{}, errors.InvalidSchema(fmt.Sprintf("row %d column %q: %q is not numeric", i, col, cell))
			}
			rec[col] = v
		}
		records = append(records, rec)
	}
	return photon.RawTable{Instrument: instrument, Schema: schema, Records: records}, nil
}

// ReadRawTable is the one-call path used by the manifest loader
func ReadRawTable(path string, instrument core.InstrumentID, schema string, config ReaderConfig) (photon.RawTable, error) {
	data, err := NewDataReader(path, config).ReadData()
	if err != nil {
		return photon.RawTable{}, errors.Wrapf(err, "reading %s", path)
	}
	table, err := data.ToRawTable(instrument, schema)
	if err != nil {
		return photon.RawTable{}, errors.Wrapf(err, "parsing %s", path)
	}
	return table, nil
}
