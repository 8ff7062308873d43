package provider

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vortexdl/vortex/internal/errs"
	"github.com/vortexdl/vortex/internal/instrument"
	"github.com/vortexdl/vortex/internal/period"
	"github.com/vortexdl/vortex/internal/series"
)

const (
	yahooName    = "yahoo"
	yahooBaseURL = "https://query1.finance.yahoo.com"

	yahooIntradayLayout = "2006-01-02 15:04"
	yahooDailyLayout    = "2006-01-02"
)

// Yahoo downloads from the public finance CSV endpoint. No login required.
type Yahoo struct {
	client *resty.Client
}

type YahooOption func(*Yahoo)

func WithYahooBaseURL(base string) YahooOption {
	return func(y *Yahoo) { y.client.SetBaseURL(base) }
}

func NewYahoo(timeout time.Duration, opts ...YahooOption) *Yahoo {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	y := &Yahoo{
		client: resty.New().
			SetBaseURL(yahooBaseURL).
			SetTimeout(timeout).
			SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)"),
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

func (y *Yahoo) Name() string { return yahooName }

// Login is a no-op; the endpoint is anonymous.
func (y *Yahoo) Login(ctx context.Context) error { return nil }

func (y *Yahoo) Logout(ctx context.Context) error { return nil }

func (y *Yahoo) SupportedFrequencies() []period.FrequencyAttributes {
	day := 24 * time.Hour
	return []period.FrequencyAttributes{
		{Frequency: period.Minute1, MaxWindow: 7 * day, MinStart: period.MinStart{Relative: 30 * day}},
		{Frequency: period.Minute2, MaxWindow: 60 * day, MinStart: period.MinStart{Relative: 60 * day}},
		{Frequency: period.Minute5, MaxWindow: 60 * day, MinStart: period.MinStart{Relative: 60 * day}},
		{Frequency: period.Minute15, MaxWindow: 60 * day, MinStart: period.MinStart{Relative: 60 * day}},
		{Frequency: period.Minute30, MaxWindow: 60 * day, MinStart: period.MinStart{Relative: 60 * day}},
		{Frequency: period.Hour1, MaxWindow: 730 * day, MinStart: period.MinStart{Relative: 730 * day}},
		{Frequency: period.Day1, MaxWindow: 365 * day, MinStart: period.MinStart{Absolute: time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)}},
		{Frequency: period.Week1, MaxWindow: 5 * 365 * day, MinStart: period.MinStart{Absolute: time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)}},
		{Frequency: period.Month1, MaxWindow: 20 * 365 * day, MinStart: period.MinStart{Absolute: time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)}},
		{Frequency: period.Month3, MaxWindow: 20 * 365 * day, MinStart: period.MinStart{Absolute: time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)}},
	}
}

var yahooIntervals = map[period.Period]string{
	period.Minute1:  "1m",
	period.Minute2:  "2m",
	period.Minute5:  "5m",
	period.Minute15: "15m",
	period.Minute30: "30m",
	period.Hour1:    "60m",
	period.Day1:     "1d",
	period.Week1:    "1wk",
	period.Month1:   "1mo",
	period.Month3:   "3mo",
}

func (y *Yahoo) FetchHistoricalData(ctx context.Context, inst instrument.Instrument, p period.Period, start, end time.Time) (*series.Series, error) {
	interval, ok := yahooIntervals[p]
	if !ok {
		return nil, errs.New(errs.KindProvider, "YAHOO_PERIOD",
			fmt.Sprintf("yahoo does not serve period %s", p))
	}
	symbol := yahooSymbol(inst)

	resp, err := y.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"period1":  strconv.FormatInt(start.Unix(), 10),
			"period2":  strconv.FormatInt(end.Unix(), 10),
			"interval": interval,
			"events":   "div,splits",
		}).
		Get("/v7/finance/download/" + symbol)
	if err != nil {
		return nil, connectionFailed(yahooName, "download", err)
	}
	if err := yahooStatusError(resp, symbol); err != nil {
		return nil, err
	}
	body := resp.String()
	if strings.TrimSpace(body) == "" {
		return nil, errs.New(errs.KindDataNotFound, "DATA_NOT_FOUND",
			fmt.Sprintf("yahoo returned no data for %s %s", symbol, p))
	}

	cols := columnMap{"Date": colDatetime}
	layout := timestampLayout(p, yahooIntradayLayout, yahooDailyLayout)
	bars, err := parseCSVSeries(strings.NewReader(body), cols, layout, usCentral(), yahooName)
	if err != nil {
		return nil, err
	}
	if len(bars) < 3 {
		return nil, errs.New(errs.KindLowData, "LOW_DATA",
			fmt.Sprintf("yahoo returned only %d rows for %s %s", len(bars), symbol, p))
	}

	return series.New(bars, series.Metadata{
		Symbol:         inst.Symbol(),
		Period:         p,
		RequestedStart: start,
		RequestedEnd:   end,
		DataProvider:   yahooName,
		ExpirationDate: expirationOf(bars),
		CreatedDate:    time.Now().UTC(),
	}), nil
}

// yahooSymbol maps forex pairs to yahoo's "=X" convention.
func yahooSymbol(inst instrument.Instrument) string {
	if inst.Class() == instrument.ClassForex {
		return inst.Symbol() + "=X"
	}
	return inst.Symbol()
}

func yahooStatusError(resp *resty.Response, symbol string) error {
	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return errs.New(errs.KindDataNotFound, "DATA_NOT_FOUND",
			fmt.Sprintf("yahoo has no data for %s", symbol))
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errs.New(errs.KindAuthenticationFailed, "YAHOO_AUTH",
			fmt.Sprintf("yahoo returned %d", code))
	case code == http.StatusTooManyRequests:
		e := errs.New(errs.KindRateLimited, "RATE_LIMITED", "yahoo rate limit hit")
		if ra := resp.Header().Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				e = e.WithRetryAfter(time.Duration(secs) * time.Second)
			}
		}
		return e
	case code >= 400:
		return errs.New(errs.KindProvider, "YAHOO_STATUS",
			fmt.Sprintf("yahoo returned %d", code))
	default:
		return nil
	}
}
