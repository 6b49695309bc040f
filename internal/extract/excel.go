package extract

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// readExcelTable reads the first sheet of a workbook. The first row is the header.
func readExcelTable(content []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &Table{}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	return newTable(rows), nil
}
