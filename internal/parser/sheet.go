package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/conorfennell/coursedeck/internal/domain"
)

// ParseCSV reads rows of question, answer and optional context. A first
// row whose first cell is "question" is treated as a header.
func ParseCSV(r io.Reader) ([]domain.Card, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return rowsToCards(rows), nil
}

// ParseWorkbook reads the first sheet of an Excel workbook with the same
// column layout as ParseCSV.
func ParseWorkbook(path string) ([]domain.Card, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s of %s: %w", sheets[0], path, err)
	}
	return rowsToCards(rows), nil
}

func rowsToCards(rows [][]string) []domain.Card {
	var cards []domain.Card
	for i, row := range rows {
		cell := func(n int) string {
			if n < len(row) {
				return strings.TrimSpace(row[n])
			}
			return ""
		}
		if i == 0 && strings.EqualFold(cell(0), "question") {
			continue
		}
		if cell(0) == "" {
			continue
		}
		cards = append(cards, domain.Card{
			Question: cell(0),
			Answer:   cell(1),
			Context:  cell(2),
		})
	}
	return cards
}
