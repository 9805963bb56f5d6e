package actiongroup

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"

	"github.com/ravi-parthasarathy/agenttrace/pkg/artifact"
)

// CSVRowsFunction counts the data rows of a CSV object. The first record
// is the header and is not counted.
type CSVRowsFunction struct {
	loader artifact.Loader
	key    string
}

// NewCSVRowsFunction creates count_csv_rows. key is read when the request
// names no object.
func NewCSVRowsFunction(loader artifact.Loader, key string) *CSVRowsFunction {
	return &CSVRowsFunction{loader: loader, key: key}
}

func (f *CSVRowsFunction) Name() string { return "count_csv_rows" }

func (f *CSVRowsFunction) Invoke(ctx context.Context, req Request) (string, error) {
	key := f.key
	for _, p := range req.Parameters {
		if p.Name == "key" && p.Value != "" {
			key = p.Value
		}
	}
	if key == "" {
		return "", &MissingParameterError{Function: f.Name(), Name: "key"}
	}
	data, err := f.loader.Load(ctx, key)
	if err != nil {
		return "", failf(err, "Error reading %s", key)
	}
	n, err := CountRows(bytes.NewReader(data))
	if err != nil {
		return "", failf(err, "Error parsing %s", key)
	}
	return strconv.Itoa(n), nil
}

// CountRows returns the number of records after the header.
func CountRows(r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	n := 0
	for {
		_, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return n - 1, nil
}
