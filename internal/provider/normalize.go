package provider

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vortexdl/vortex/internal/errs"
	"github.com/vortexdl/vortex/internal/period"
	"github.com/vortexdl/vortex/internal/series"
)

// Canonical column names after normalization.
const (
	colDatetime = "Datetime"
	colOpen     = "Open"
	colHigh     = "High"
	colLow      = "Low"
	colClose    = "Close"
	colVolume   = "Volume"
)

// columnMap renames a provider's raw header to canonical names. Unmapped
// columns pass through and land in Bar.Extra.
type columnMap map[string]string

var (
	centralOnce sync.Once
	centralLoc  *time.Location
)

// usCentral is the exchange-local timezone raw timestamps arrive in.
func usCentral() *time.Location {
	centralOnce.Do(func() {
		loc, err := time.LoadLocation("America/Chicago")
		if err != nil {
			loc = time.FixedZone("CST", -6*60*60)
		}
		centralLoc = loc
	})
	return centralLoc
}

// parseCSVSeries reads a provider CSV body into bars: headers are renamed
// through cols, timestamps parsed with the given layout in src and converted
// to UTC. A single unparsable trailing line (some providers append a footer)
// is dropped; any earlier parse failure is an error.
func parseCSVSeries(r io.Reader, cols columnMap, layout string, src *time.Location, providerName string) ([]series.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errs.Wrap(errs.KindProvider, "CSV_PARSE",
			fmt.Sprintf("%s: malformed CSV response", providerName), err)
	}
	if len(records) < 2 {
		return nil, errs.New(errs.KindDataNotFound, "DATA_NOT_FOUND",
			fmt.Sprintf("%s: empty CSV response", providerName))
	}

	header := make([]string, len(records[0]))
	for i, raw := range records[0] {
		name := strings.TrimSpace(raw)
		if mapped, ok := cols[name]; ok {
			name = mapped
		}
		header[i] = name
	}
	tsIdx := -1
	for i, name := range header {
		if name == colDatetime {
			tsIdx = i
			break
		}
	}
	if tsIdx < 0 {
		return nil, errs.New(errs.KindProvider, "CSV_NO_DATETIME",
			fmt.Sprintf("%s: CSV header lacks a datetime column: %v", providerName, records[0]))
	}

	bars := make([]series.Bar, 0, len(records)-1)
	for rowNum, rec := range records[1:] {
		if len(rec) < len(header) {
			rec = append(rec, make([]string, len(header)-len(rec))...)
		}
		ts, err := time.ParseInLocation(layout, strings.TrimSpace(rec[tsIdx]), src)
		if err != nil {
			// Barchart appends a one-line plan footer below the data.
			if rowNum == len(records)-2 {
				continue
			}
			return nil, errs.Wrap(errs.KindProvider, "CSV_BAD_ROW",
				fmt.Sprintf("%s: unparsable timestamp %q at row %d", providerName, rec[tsIdx], rowNum+2), err)
		}
		bar := series.Bar{Timestamp: ts.UTC()}
		for i, name := range header {
			if i == tsIdx || i >= len(rec) {
				continue
			}
			val, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				continue
			}
			switch name {
			case colOpen:
				bar.Open = val
			case colHigh:
				bar.High = val
			case colLow:
				bar.Low = val
			case colClose:
				bar.Close = val
			case colVolume:
				bar.Volume = val
			default:
				if bar.Extra == nil {
					bar.Extra = make(map[string]float64)
				}
				bar.Extra[name] = val
			}
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// timestampLayout picks the raw timestamp layout per bar frequency.
func timestampLayout(p period.Period, intradayLayout, dailyLayout string) string {
	if p.Intraday() {
		return intradayLayout
	}
	return dailyLayout
}

// expirationOf returns the zero-volume-last-bar expiry heuristic: when the
// final bar of a fetch traded nothing the contract is assumed expired there.
func expirationOf(bars []series.Bar) *time.Time {
	if len(bars) == 0 {
		return nil
	}
	last := bars[len(bars)-1]
	if last.Volume == 0 {
		t := last.Timestamp
		return &t
	}
	return nil
}
