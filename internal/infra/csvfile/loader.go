// Package csvfile loads question banks from Quizizz-style CSV exports.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"telegram-quiz-bot/internal/domain"
)

var optionColumns = []string{"Option 1", "Option 2", "Option 3", "Option 4"}

// Loader reads a question bank from a single CSV file. The expected header
// columns are "Question", "Option 1".."Option 4" and "Correct Answer";
// missing cells default to empty strings rather than failing the row.
type Loader struct {
	path string
}

func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

func (l *Loader) LoadBank(_ context.Context, bankID string) (domain.Bank, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return domain.Bank{}, fmt.Errorf("open bank file: %w", err)
	}
	defer f.Close()

	questions, err := Parse(f)
	if err != nil {
		return domain.Bank{}, fmt.Errorf("parse bank file %s: %w", l.path, err)
	}
	return domain.Bank{ID: bankID, Questions: questions}, nil
}

// Parse reads questions from CSV data. A malformed file is an error; a row
// with missing cells is not.
func Parse(r io.Reader) ([]domain.Question, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	cell := func(record []string, name string) string {
		if i, ok := columns[name]; ok && i < len(record) {
			return record[i]
		}
		return ""
	}

	var questions []domain.Question
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		options := make([]string, 0, domain.OptionsPerQuestion)
		for _, column := range optionColumns {
			options = append(options, cell(record, column))
		}
		questions = append(questions, domain.Question{
			Text:    cell(record, "Question"),
			Options: options,
			Correct: cell(record, "Correct Answer"),
		})
	}
	return questions, nil
}
