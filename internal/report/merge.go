package report

import (
	"errors"
	"fmt"
	"os"
)

// ErrSourcesNotRemoved reports that the merged file was written but some
// source files could not be deleted.
var ErrSourcesNotRemoved = errors.New("merged sources not removed")

// MergeFiles concatenates the rows of srcs into a new CSV at dst in order.
// Sources are removed only after dst has been written and closed.
func MergeFiles(dst string, srcs []string, removeSources bool) ([]OutputRow, error) {
	var all []OutputRow
	for _, src := range srcs {
		rows, err := ReadCSVFile(src)
		if err != nil {
			return nil, fmt.Errorf("merge %s: %w", src, err)
		}
		all = append(all, rows...)
	}
	out, err := CreateCSV(dst)
	if err != nil {
		return nil, err
	}
	if err := out.WriteRows(all); err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("write merged csv: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, err
	}
	if removeSources {
		var errs []error
		for _, src := range srcs {
			if src == dst {
				continue
			}
			if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			return all, fmt.Errorf("%w: %w", ErrSourcesNotRemoved, err)
		}
	}
	return all, nil
}
