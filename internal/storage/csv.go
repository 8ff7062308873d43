package storage

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/vortexdl/vortex/internal/errs"
	"github.com/vortexdl/vortex/internal/instrument"
	"github.com/vortexdl/vortex/internal/metrics"
	"github.com/vortexdl/vortex/internal/period"
	"github.com/vortexdl/vortex/internal/series"
)

// csvTimeLayout is ISO-8601 with a UTC offset and no colon, matching the
// files the original pipeline wrote.
const csvTimeLayout = "2006-01-02T15:04:05-0700"

var csvBaseHeader = []string{"Datetime", "Open", "High", "Low", "Close", "Volume"}

// CSV stores series as comma-separated files with a Datetime index column.
type CSV struct {
	layout Layout
}

func NewCSV(base string) *CSV {
	return &CSV{layout: Layout{Base: base, Ext: "csv"}}
}

func (c *CSV) Name() string { return "csv" }

// Persist writes the frame sorted ascending plus its sidecar.
func (c *CSV) Persist(s *series.Series, inst instrument.Instrument, p period.Period) error {
	path := c.layout.DataPath(inst, p)

	extras := extraColumns(s)
	header := append(append([]string{}, csvBaseHeader...), extras...)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return wrapWriteError(path, err)
	}
	for _, bar := range s.Bars {
		row := make([]string, 0, len(header))
		row = append(row,
			bar.Timestamp.UTC().Format(csvTimeLayout),
			formatFloat(bar.Open),
			formatFloat(bar.High),
			formatFloat(bar.Low),
			formatFloat(bar.Close),
			formatFloat(bar.Volume),
		)
		for _, col := range extras {
			row = append(row, formatFloat(bar.Extra[col]))
		}
		if err := w.Write(row); err != nil {
			return wrapWriteError(path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return wrapWriteError(path, err)
	}

	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return wrapWriteError(path, err)
	}
	if err := writeSidecar(path, s.Meta); err != nil {
		return err
	}
	metrics.RowsPersisted.WithLabelValues(c.Name()).Add(float64(s.Len()))
	return nil
}

// Load reads the sidecar and data file; missing either is NotFound. A single
// unparsable trailing line (the footer some providers append) is dropped.
func (c *CSV) Load(inst instrument.Instrument, p period.Period) (*series.Series, error) {
	path := c.layout.DataPath(inst, p)
	meta, err := readSidecar(path)
	if err != nil {
		return nil, err
	}
	if err := checkRegularFile(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, "STORAGE_READ",
			fmt.Sprintf("failed to open %s", path), err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, errs.Wrap(errs.KindStorageFileCorrupted, "STORAGE_CSV_CORRUPT",
			fmt.Sprintf("%s is not valid CSV", path), err)
	}
	if len(records) == 0 {
		return nil, errs.New(errs.KindStorageFileCorrupted, "STORAGE_CSV_EMPTY",
			fmt.Sprintf("%s has no header", path))
	}

	header := records[0]
	bars := make([]series.Bar, 0, len(records)-1)
	for i, rec := range records[1:] {
		ts, err := time.Parse(csvTimeLayout, rec[0])
		if err != nil {
			if i == len(records)-2 {
				continue
			}
			return nil, errs.Wrap(errs.KindStorageFileCorrupted, "STORAGE_CSV_ROW",
				fmt.Sprintf("%s: bad timestamp %q at row %d", path, rec[0], i+2), err)
		}
		bar := series.Bar{Timestamp: ts.UTC()}
		for j := 1; j < len(header) && j < len(rec); j++ {
			val, err := strconv.ParseFloat(rec[j], 64)
			if err != nil {
				continue
			}
			switch header[j] {
			case "Open":
				bar.Open = val
			case "High":
				bar.High = val
			case "Low":
				bar.Low = val
			case "Close":
				bar.Close = val
			case "Volume":
				bar.Volume = val
			default:
				if bar.Extra == nil {
					bar.Extra = make(map[string]float64)
				}
				bar.Extra[header[j]] = val
			}
		}
		bars = append(bars, bar)
	}
	return series.New(bars, meta), nil
}

// extraColumns returns the sorted union of extra column names in a series.
func extraColumns(s *series.Series) []string {
	set := make(map[string]struct{})
	for _, bar := range s.Bars {
		for col := range bar.Extra {
			set[col] = struct{}{}
		}
	}
	cols := make([]string, 0, len(set))
	for col := range set {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
