package parsers

import (
	"io"

	"statement-ingestion-service/pkg/errors"

	"github.com/xuri/excelize/v2"
)

// xlsxSource adapts an excelize worksheet iterator to the recordSource
// interface. Only the first sheet of the workbook is read.
type xlsxSource struct {
	file *excelize.File
	rows *excelize.Rows
}

func newXLSXSource(r io.Reader) (*xlsxSource, error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, "", err).
			WithSuggestion("Ensure the upload is a valid XLSX workbook")
	}

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		file.Close()
		return nil, errors.ParseError(errors.CodeMissingHeader, 0, "", "", nil).
			WithSuggestion("The workbook contains no sheets")
	}

	rows, err := file.Rows(sheets[0])
	if err != nil {
		file.Close()
		return nil, errors.FileError(errors.CodeFileCorrupted, "", err)
	}

	return &xlsxSource{
		file: file,
		rows: rows,
	}, nil
}

func (s *xlsxSource) Read() ([]string, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	return s.rows.Columns()
}

func (s *xlsxSource) Close() error {
	s.rows.Close()
	return s.file.Close()
}
