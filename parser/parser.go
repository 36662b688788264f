// Package parser reads explicit initial node states from text files.
//
// The format is a list of 0 (susceptible) and 1 (infected) values in node
// order, separated by spaces, commas or new lines. Empty lines and lines
// starting with '#' are ignored.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/leomarlo/simulate-sis-on-circle/sis"
)

// ParseStates reads the initial states stored in the file at filepath.
func ParseStates(filepath string) (sis.Sequence, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ReadStates(file)
}

// ReadStates reads initial states from r.
func ReadStates(r io.Reader) (sis.Sequence, error) {
	scanner := bufio.NewScanner(r)

	states := sis.Sequence{}
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.FieldsFunc(text, func(c rune) bool {
			return c == ',' || c == ' ' || c == '\t'
		})
		for _, f := range fields {
			v, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("invalid state on line %d: %s", line, err)
			}
			if v != 0 && v != 1 {
				return nil, fmt.Errorf("invalid state on line %d: want 0 or 1, got %d", line, v)
			}
			states = append(states, sis.State(v))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return states, nil
}
