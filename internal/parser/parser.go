// Package parser reads deck files into cards. A deck file is a markdown
// document of Q:/A:/C: blocks, or a CSV/XLSX sheet of question, answer and
// optional context columns.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/coursedeck/internal/domain"
)

// Extensions lists the deck file extensions ParseFile understands.
var Extensions = []string{".md", ".csv", ".xlsx"}

// IsDeckFile reports whether path has a deck file extension.
func IsDeckFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ParseFile reads the deck file at path, choosing the format by extension.
func ParseFile(path string) ([]domain.Card, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md":
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return Parse(file)
	case ".csv":
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return ParseCSV(file)
	case ".xlsx":
		return ParseWorkbook(path)
	default:
		return nil, fmt.Errorf("unsupported deck file %s", path)
	}
}

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	contextPrefix  = "C:"
	separator      = "---"
)

type field int

const (
	none field = iota
	question
	answer
	context
)

// Parse reads markdown from an io.Reader and extracts all cards. A card
// starts at a "Q:" line and ends at the next "Q:" line, a "---" line or the
// end of input. Text before the first question is ignored.
func Parse(r io.Reader) ([]domain.Card, error) {
	var (
		cards   []domain.Card
		current domain.Card
		block   []string
		reading = none
	)

	flushBlock := func() {
		if len(block) == 0 {
			return
		}
		text := strings.TrimRight(strings.Join(block, "\n"), "\n")
		switch reading {
		case question:
			current.Question = text
		case answer:
			current.Answer = text
		case context:
			current.Context = text
		}
		block = nil
	}
	finishCard := func() {
		flushBlock()
		if current.Question != "" {
			cards = append(cards, current)
		}
		current = domain.Card{}
		reading = none
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		if line == separator {
			finishCard()
			continue
		}

		next, rest := classify(line)
		switch {
		case next == question:
			finishCard()
			reading = question
			block = append(block, rest)
		case next != none:
			flushBlock()
			reading = next
			block = append(block, rest)
		case reading != none:
			block = append(block, line)
		}
	}
	finishCard()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cards, nil
}

// classify returns the field a line opens and its content without the
// prefix and one optional space.
func classify(line string) (field, string) {
	for _, p := range []struct {
		prefix string
		field  field
	}{
		{questionPrefix, question},
		{answerPrefix, answer},
		{contextPrefix, context},
	} {
		if rest, ok := strings.CutPrefix(line, p.prefix); ok {
			return p.field, strings.TrimPrefix(rest, " ")
		}
	}
	return none, ""
}
