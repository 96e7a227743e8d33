package report

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// bom marks the file as UTF-8 for spreadsheet tools.
var bom = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter streams rows, flushing after every batch.
type CSVWriter struct {
	w *csv.Writer
}

// NewCSVWriter writes the byte-order mark and header immediately so even an
// empty result is a valid file.
func NewCSVWriter(w io.Writer) (*CSVWriter, error) {
	if _, err := w.Write(bom); err != nil {
		return nil, fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &CSVWriter{w: cw}, nil
}

// WriteRows implements RowWriter.
func (c *CSVWriter) WriteRows(rows []OutputRow) error {
	for _, r := range rows {
		if err := c.w.Write(r.Record()); err != nil {
			return err
		}
	}
	c.w.Flush()
	return c.w.Error()
}

// CSVFile is a CSVWriter bound to a file on disk.
type CSVFile struct {
	*CSVWriter
	f    *os.File
	path string
}

// CreateCSV creates path (and its parent directory) and writes the header.
func CreateCSV(path string) (*CSVFile, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("create csv: %w", err)
	}
	w, err := NewCSVWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &CSVFile{CSVWriter: w, f: f, path: path}, nil
}

// Path returns the file location.
func (c *CSVFile) Path() string {
	return c.path
}

// Close syncs and closes the file.
func (c *CSVFile) Close() error {
	if err := c.f.Sync(); err != nil {
		_ = c.f.Close()
		return fmt.Errorf("sync csv: %w", err)
	}
	return c.f.Close()
}

// columnAliases maps accepted header spellings to Header positions.
var columnAliases = map[string]int{
	"post": 0, "post_number": 0, "post number": 0,
	"url": 1, "post_url": 1,
	"date":     2,
	"time":     3,
	"likes":    4,
	"caption":  5,
	"comments": 6, "comment": 6,
}

// ReadCSV parses rows written by CSVWriter. A leading byte-order mark is
// ignored and columns are matched by header name.
func ReadCSV(r io.Reader) ([]OutputRow, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(bom)); err == nil && bytes.Equal(head, bom) {
		_, _ = br.Discard(len(bom))
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make([]int, len(header))
	found := 0
	for i, name := range header {
		pos, ok := columnAliases[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			index[i] = -1
			continue
		}
		index[i] = pos
		found++
	}
	if found == 0 {
		return nil, fmt.Errorf("no recognised columns in header %q", header)
	}

	var rows []OutputRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		var cols [7]string
		for i, v := range rec {
			if i < len(index) && index[i] >= 0 {
				cols[index[i]] = v
			}
		}
		row := OutputRow{URL: cols[1], Date: cols[2], Time: cols[3], Likes: cols[4], Caption: cols[5], Comment: cols[6]}
		if p := strings.TrimSpace(cols[0]); p != "" {
			n, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("line %d: post number %q: %w", line, p, err)
			}
			row.Post = n
		}
		rows = append(rows, row)
	}
}

// ReadCSVFile opens path and parses it with ReadCSV.
func ReadCSVFile(path string) ([]OutputRow, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadCSV(f)
}
