package instrument

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/vortexdl/vortex/internal/errs"
	"github.com/vortexdl/vortex/internal/period"
)

// Config is the declarative download plan for one logical instrument,
// as read from the instrument configuration JSON mapping.
type Config struct {
	AssetClass AssetClass      `json:"asset_class"`
	Code       string          `json:"code"`
	Cycle      string          `json:"cycle,omitempty"`
	Periods    []period.Period `json:"periods"`
	TickDate   *ConfigDate     `json:"tick_date,omitempty"`
	DaysCount  int             `json:"days_count,omitempty"`
	StartDate  *ConfigDate     `json:"start_date,omitempty"`
}

// Enabled reports whether the config produces any jobs. periods=[] disables.
func (c Config) Enabled() bool { return len(c.Periods) > 0 }

// TickTime returns the tick date or the zero time.
func (c Config) TickTime() time.Time {
	if c.TickDate == nil {
		return time.Time{}
	}
	return c.TickDate.Time
}

// StartTime returns the start date override or the zero time.
func (c Config) StartTime() time.Time {
	if c.StartDate == nil {
		return time.Time{}
	}
	return c.StartDate.Time
}

// Validate checks cross-field constraints before planning.
func (c Config) Validate(key string) error {
	switch c.AssetClass {
	case ClassFuture, ClassStock, ClassForex:
	default:
		return errs.New(errs.KindInstrument, "INSTRUMENT_CLASS",
			fmt.Sprintf("instrument %q: unknown asset_class %q", key, c.AssetClass))
	}
	if c.Code == "" {
		return errs.New(errs.KindInstrument, "INSTRUMENT_CODE",
			fmt.Sprintf("instrument %q: code is required", key))
	}
	for _, p := range c.Periods {
		if !p.Valid() {
			return errs.New(errs.KindInstrument, "INSTRUMENT_PERIOD",
				fmt.Sprintf("instrument %q: unknown period %q", key, p))
		}
	}
	if c.AssetClass == ClassFuture {
		if c.Cycle == "" {
			return errs.New(errs.KindInstrument, "INSTRUMENT_CYCLE",
				fmt.Sprintf("future %q: cycle is required", key))
		}
		for _, r := range c.Cycle {
			if _, err := MonthOf(r); err != nil {
				return errs.New(errs.KindInstrument, "INSTRUMENT_CYCLE",
					fmt.Sprintf("future %q: %v", key, err))
			}
		}
		if c.DaysCount <= 0 {
			return errs.New(errs.KindInstrument, "INSTRUMENT_DAYS",
				fmt.Sprintf("future %q: days_count must be positive", key))
		}
	}
	return nil
}

// ConfigDate is a YYYY-MM-DD date in instrument config files.
type ConfigDate struct {
	time.Time
}

const configDateLayout = "2006-01-02"

func (d *ConfigDate) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.ParseInLocation(configDateLayout, s, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	d.Time = t
	return nil
}

func (d ConfigDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(configDateLayout))
}

// LoadConfigs reads the instrument configuration mapping from a JSON file
// and validates every entry.
func LoadConfigs(path string) (map[string]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "INSTRUMENTS_READ",
			fmt.Sprintf("failed to read instrument config %s", path), err).
			WithHelp("check that the file exists and is readable", "fix the --instruments path")
	}
	var configs map[string]Config
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "INSTRUMENTS_PARSE",
			fmt.Sprintf("failed to parse instrument config %s", path), err).
			WithHelp("the file must be a JSON object keyed by instrument name", "fix the JSON syntax")
	}
	for key, cfg := range configs {
		if err := cfg.Validate(key); err != nil {
			return nil, err
		}
	}
	return configs, nil
}

// SortedKeys returns config keys in deterministic order. Planning and
// scheduling iterate in this order so runs are reproducible.
func SortedKeys(configs map[string]Config) []string {
	keys := make([]string, 0, len(configs))
	for k := range configs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
