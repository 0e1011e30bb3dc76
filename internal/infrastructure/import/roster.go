package csvimport

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Roster CSV columns
const (
	ColumnNumber           = "number"
	ColumnDefaultOccupancy = "default_occupancy"
)

// RosterRow is one validated apartment row
type RosterRow struct {
	Line             int    `json:"line"`
	Number           string `json:"number" validate:"required,max=16,alphanum"`
	DefaultOccupancy int    `json:"default_occupancy" validate:"gte=0,lte=50"`
}

// RosterFile is the outcome of parsing a roster upload.
// Rows holds only rows that passed validation.
type RosterFile struct {
	TotalRows int
	Rows      []RosterRow
	Errors    *ErrorCollection
}

// RosterParser parses roster CSVs with header number,default_occupancy.
// A missing or empty default_occupancy column uses the configured default.
type RosterParser struct {
	validate         *validator.Validate
	defaultOccupancy int
	maxErrors        int
}

// NewRosterParser creates a RosterParser
func NewRosterParser(defaultOccupancy int) *RosterParser {
	return &RosterParser{
		validate:         validator.New(validator.WithRequiredStructEnabled()),
		defaultOccupancy: defaultOccupancy,
		maxErrors:        100,
	}
}

// Parse reads every row of r. File-level problems (encoding, header, no
// rows) are returned as an error; row problems are collected in the result.
func (p *RosterParser) Parse(r io.Reader) (*RosterFile, error) {
	parser, err := NewCSVParser(r)
	if err != nil {
		return nil, err
	}
	if err := parser.ParseHeader(); err != nil {
		return nil, err
	}
	if missing := parser.MissingHeaders(ColumnNumber); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing column(s) %s", ErrMissingHeader, strings.Join(missing, ", "))
	}

	out := &RosterFile{Errors: NewErrorCollection(p.maxErrors)}
	seen := make(map[string]int)
	for {
		row, err := parser.ReadRow()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			out.TotalRows++
			out.Errors.Add(RowError{Row: parser.CurrentRow(), Code: ErrCodeImportMalformedRow, Message: err.Error()})
			continue
		}
		if row.IsEmpty() {
			continue
		}
		out.TotalRows++

		parsed, ok := p.parseRow(row, out.Errors)
		if !ok {
			continue
		}
		if first, dup := seen[parsed.Number]; dup {
			out.Errors.Add(RowError{
				Row:     row.LineNumber,
				Column:  ColumnNumber,
				Code:    ErrCodeImportDuplicateInFile,
				Message: fmt.Sprintf("apartment already listed on row %d", first),
				Value:   parsed.Number,
			})
			continue
		}
		seen[parsed.Number] = row.LineNumber
		out.Rows = append(out.Rows, parsed)
	}

	if out.TotalRows == 0 {
		return nil, ErrNoDataRows
	}
	return out, nil
}

func (p *RosterParser) parseRow(row *Row, errs *ErrorCollection) (RosterRow, bool) {
	parsed := RosterRow{
		Line:             row.LineNumber,
		Number:           row.Get(ColumnNumber),
		DefaultOccupancy: p.defaultOccupancy,
	}
	if raw := row.Get(ColumnDefaultOccupancy); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs.Add(RowError{
				Row:     row.LineNumber,
				Column:  ColumnDefaultOccupancy,
				Code:    ErrCodeImportInvalidType,
				Message: "expected a whole number",
				Value:   raw,
			})
			return RosterRow{}, false
		}
		parsed.DefaultOccupancy = n
	}

	if err := p.validate.Struct(parsed); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			errs.Add(RowError{Row: row.LineNumber, Code: ErrCodeImportMalformedRow, Message: err.Error()})
			return RosterRow{}, false
		}
		for _, fe := range verrs {
			errs.Add(fieldError(row.LineNumber, fe))
		}
		return RosterRow{}, false
	}
	return parsed, true
}

// fieldError converts a validator field error into a RowError
func fieldError(line int, fe validator.FieldError) RowError {
	column := ColumnNumber
	if fe.StructField() == "DefaultOccupancy" {
		column = ColumnDefaultOccupancy
	}
	re := RowError{Row: line, Column: column, Value: fmt.Sprint(fe.Value())}
	switch fe.Tag() {
	case "required":
		re.Code = ErrCodeImportRequiredField
		re.Message = fmt.Sprintf("field '%s' is required", column)
	case "gte", "lte":
		re.Code = ErrCodeImportInvalidRange
		re.Message = "value must be between 0 and 50"
	default:
		re.Code = ErrCodeImportInvalidFormat
		re.Message = fmt.Sprintf("failed '%s' validation", fe.Tag())
	}
	return re
}
