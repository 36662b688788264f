package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/leomarlo/simulate-sis-on-circle/config"
	"github.com/leomarlo/simulate-sis-on-circle/sis"
)

// seriesWriter writes snapshots one step at a time so that both stored and
// streamed runs share the same output path.
type seriesWriter interface {
	WriteStep(step int, states sis.Snapshot) error
	Flush() error
}

func newSeriesWriter(format string, w io.Writer, nNodes int) (seriesWriter, error) {
	switch format {
	case config.FormatCSV:
		return &csvWriter{w: csv.NewWriter(w), nNodes: nNodes}, nil
	case config.FormatJSONL:
		return &jsonlWriter{enc: json.NewEncoder(w)}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// csvWriter writes one row per step: the step number followed by the state
// of each node. The header is written before the first row, or on Flush for
// an empty series.
type csvWriter struct {
	w             *csv.Writer
	nNodes        int
	headerWritten bool
}

func (cw *csvWriter) writeHeader() error {
	cw.headerWritten = true
	header := make([]string, 0, cw.nNodes+1)
	header = append(header, "step")
	for n := 0; n < cw.nNodes; n++ {
		header = append(header, "n"+strconv.Itoa(n))
	}
	return cw.w.Write(header)
}

func (cw *csvWriter) WriteStep(step int, states sis.Snapshot) error {
	if !cw.headerWritten {
		if err := cw.writeHeader(); err != nil {
			return err
		}
	}
	row := make([]string, 0, len(states)+1)
	row = append(row, strconv.Itoa(step))
	for _, s := range states {
		row = append(row, strconv.Itoa(int(s)))
	}
	return cw.w.Write(row)
}

func (cw *csvWriter) Flush() error {
	if !cw.headerWritten {
		if err := cw.writeHeader(); err != nil {
			return err
		}
	}
	cw.w.Flush()
	return cw.w.Error()
}

type stepRecord struct {
	Step     int   `json:"step"`
	Infected int   `json:"infected"`
	States   []int `json:"states"`
}

// jsonlWriter writes one JSON object per line and step.
type jsonlWriter struct {
	enc *json.Encoder
}

func (jw *jsonlWriter) WriteStep(step int, states sis.Snapshot) error {
	return jw.enc.Encode(stepRecord{
		Step:     step,
		Infected: states.NumInfected(),
		States:   states.Ints(),
	})
}

func (jw *jsonlWriter) Flush() error {
	return nil
}
