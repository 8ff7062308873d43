package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/vortexdl/vortex/internal/errs"
	"github.com/vortexdl/vortex/internal/instrument"
	"github.com/vortexdl/vortex/internal/metrics"
	"github.com/vortexdl/vortex/internal/period"
	"github.com/vortexdl/vortex/internal/series"
)

// parquetRow is the columnar on-disk schema. Provider-specific extra columns
// ride in a JSON string so the schema stays fixed across providers.
type parquetRow struct {
	Datetime int64   `parquet:"datetime"` // epoch nanoseconds, UTC
	Open     float64 `parquet:"open"`
	High     float64 `parquet:"high"`
	Low      float64 `parquet:"low"`
	Close    float64 `parquet:"close"`
	Volume   float64 `parquet:"volume"`
	Extras   string  `parquet:"extras,optional"`
}

// Parquet stores series as snappy-compressed columnar files.
type Parquet struct {
	layout Layout
}

func NewParquet(base string) *Parquet {
	return &Parquet{layout: Layout{Base: base, Ext: "parquet"}}
}

func (p *Parquet) Name() string { return "parquet" }

func (p *Parquet) Persist(s *series.Series, inst instrument.Instrument, per period.Period) error {
	path := p.layout.DataPath(inst, per)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return wrapWriteError(path, err)
	}

	rows := make([]parquetRow, 0, s.Len())
	for _, bar := range s.Bars {
		row := parquetRow{
			Datetime: bar.Timestamp.UTC().UnixNano(),
			Open:     bar.Open,
			High:     bar.High,
			Low:      bar.Low,
			Close:    bar.Close,
			Volume:   bar.Volume,
		}
		if len(bar.Extra) > 0 {
			encoded, err := json.Marshal(bar.Extra)
			if err != nil {
				return wrapWriteError(path, err)
			}
			row.Extras = string(encoded)
		}
		rows = append(rows, row)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return wrapWriteError(path, err)
	}
	w := parquet.NewGenericWriter[parquetRow](f, parquet.Compression(&parquet.Snappy))
	if _, err := w.Write(rows); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return wrapWriteError(path, err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return wrapWriteError(path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return wrapWriteError(path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return wrapWriteError(path, err)
	}

	if err := writeSidecar(path, s.Meta); err != nil {
		return err
	}
	metrics.RowsPersisted.WithLabelValues(p.Name()).Add(float64(s.Len()))
	return nil
}

func (p *Parquet) Load(inst instrument.Instrument, per period.Period) (*series.Series, error) {
	path := p.layout.DataPath(inst, per)
	meta, err := readSidecar(path)
	if err != nil {
		return nil, err
	}
	if err := checkRegularFile(path); err != nil {
		return nil, err
	}

	rows, err := parquet.ReadFile[parquetRow](path)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorageFileCorrupted, "STORAGE_PARQUET_CORRUPT",
			fmt.Sprintf("%s is not a readable parquet file", path), err).
			WithHelp("the columnar file is damaged", "delete the data file and its sidecar, then re-download")
	}

	bars := make([]series.Bar, 0, len(rows))
	for _, row := range rows {
		bar := series.Bar{
			Timestamp: time.Unix(0, row.Datetime).UTC(),
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
		}
		if row.Extras != "" {
			extra := make(map[string]float64)
			if err := json.Unmarshal([]byte(row.Extras), &extra); err == nil {
				bar.Extra = extra
			}
		}
		bars = append(bars, bar)
	}
	return series.New(bars, meta), nil
}
