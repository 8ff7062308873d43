package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/vortexdl/vortex/internal/errs"
	"github.com/vortexdl/vortex/internal/instrument"
	"github.com/vortexdl/vortex/internal/period"
	"github.com/vortexdl/vortex/internal/series"
)

const ibkrName = "ibkr"

// IBKR talks to an Interactive Brokers Client Portal gateway over its local
// REST surface. The gateway owns the brokerage session; Login only verifies
// that a session is live, it cannot create one.
type IBKR struct {
	client   *resty.Client
	clientID int

	mu       sync.Mutex
	loggedIn bool
	conids   map[string]int
}

type IBKROption func(*IBKR)

func WithIBKRBaseURL(base string) IBKROption {
	return func(i *IBKR) { i.client.SetBaseURL(base) }
}

func NewIBKR(host string, port, clientID int, timeout time.Duration, opts ...IBKROption) *IBKR {
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 5000
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	i := &IBKR{
		client: resty.New().
			SetBaseURL(fmt.Sprintf("https://%s:%d/v1/api", host, port)).
			SetTimeout(timeout).
			// The gateway serves a self-signed certificate on loopback.
			SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}),
		clientID: clientID,
		conids:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *IBKR) Name() string { return ibkrName }

func (i *IBKR) SupportedFrequencies() []period.FrequencyAttributes {
	day := 24 * time.Hour
	intraday := func(p period.Period, window time.Duration) period.FrequencyAttributes {
		return period.FrequencyAttributes{
			Frequency: p,
			MaxWindow: window,
			MinStart:  period.MinStart{Relative: 365 * day},
		}
	}
	return []period.FrequencyAttributes{
		intraday(period.Minute1, 7*day),
		intraday(period.Minute2, 14*day),
		intraday(period.Minute5, 30*day),
		intraday(period.Minute15, 60*day),
		intraday(period.Minute30, 90*day),
		intraday(period.Hour1, 180*day),
		{Frequency: period.Day1, MaxWindow: 365 * day, MinStart: period.MinStart{Relative: 20 * 365 * day}},
		{Frequency: period.Week1, MaxWindow: 5 * 365 * day, MinStart: period.MinStart{Relative: 20 * 365 * day}},
		{Frequency: period.Month1, MaxWindow: 20 * 365 * day, MinStart: period.MinStart{Relative: 30 * 365 * day}},
	}
}

// Login verifies the gateway session. A dead session needs the operator to
// re-authenticate in the gateway, so it maps to AuthenticationFailed.
func (i *IBKR) Login(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.loggedIn {
		return nil
	}
	var status struct {
		Authenticated bool `json:"authenticated"`
		Connected     bool `json:"connected"`
	}
	resp, err := i.client.R().SetContext(ctx).SetResult(&status).Post("/iserver/auth/status")
	if err != nil {
		return connectionFailed(ibkrName, "auth status", err)
	}
	if resp.StatusCode() != http.StatusOK || !status.Authenticated {
		return errs.New(errs.KindAuthenticationFailed, "IBKR_AUTH",
			"ibkr gateway session is not authenticated").
			WithHelp("the client portal gateway has no live brokerage session", "log in to the gateway and rerun")
	}
	i.loggedIn = true
	log.Debug().Str("provider", ibkrName).Int("client_id", i.clientID).Msg("gateway session verified")
	return nil
}

// Logout releases the local view of the session; the gateway keeps its own.
func (i *IBKR) Logout(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.loggedIn {
		return nil
	}
	_, err := i.client.R().SetContext(ctx).Post("/logout")
	i.loggedIn = false
	if err != nil {
		log.Warn().Str("provider", ibkrName).Err(err).Msg("gateway logout failed")
	}
	return nil
}

var ibkrBars = map[period.Period]string{
	period.Minute1:  "1min",
	period.Minute2:  "2min",
	period.Minute5:  "5min",
	period.Minute15: "15min",
	period.Minute30: "30min",
	period.Hour1:    "1h",
	period.Day1:     "1d",
	period.Week1:    "1w",
	period.Month1:   "1m",
}

func (i *IBKR) FetchHistoricalData(ctx context.Context, inst instrument.Instrument, p period.Period, start, end time.Time) (*series.Series, error) {
	if err := i.Login(ctx); err != nil {
		return nil, err
	}
	bar, ok := ibkrBars[p]
	if !ok {
		return nil, errs.New(errs.KindProvider, "IBKR_PERIOD",
			fmt.Sprintf("ibkr does not serve period %s", p))
	}
	conid, err := i.resolveConid(ctx, inst)
	if err != nil {
		return nil, err
	}

	days := int(end.Sub(start).Hours()/24) + 1
	var history struct {
		Data []struct {
			T     int64   `json:"t"` // epoch millis
			O     float64 `json:"o"`
			H     float64 `json:"h"`
			L     float64 `json:"l"`
			C     float64 `json:"c"`
			V     float64 `json:"v"`
			WAP   float64 `json:"wap"`
			Count float64 `json:"count"`
		} `json:"data"`
	}
	resp, err := i.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"conid":     strconv.Itoa(conid),
			"period":    fmt.Sprintf("%dd", days),
			"bar":       bar,
			"startTime": start.UTC().Format("20060102-15:04:05"),
			"outsideRth": "true",
		}).
		SetResult(&history).
		Get("/iserver/marketdata/history")
	if err != nil {
		return nil, connectionFailed(ibkrName, "history", err)
	}
	if err := ibkrStatusError(resp); err != nil {
		return nil, err
	}
	if len(history.Data) == 0 {
		return nil, errs.New(errs.KindDataNotFound, "DATA_NOT_FOUND",
			fmt.Sprintf("ibkr returned no bars for conid %d %s", conid, p))
	}

	bars := make([]series.Bar, 0, len(history.Data))
	for _, d := range history.Data {
		ts := time.UnixMilli(d.T).UTC()
		if ts.Before(start) || ts.After(end) {
			continue
		}
		bars = append(bars, series.Bar{
			Timestamp: ts,
			Open:      d.O,
			High:      d.H,
			Low:       d.L,
			Close:     d.C,
			Volume:    d.V,
			Extra:     map[string]float64{"WAP": d.WAP, "Count": d.Count},
		})
	}
	if len(bars) < 3 {
		return nil, errs.New(errs.KindLowData, "LOW_DATA",
			fmt.Sprintf("ibkr returned only %d usable rows for conid %d %s", len(bars), conid, p))
	}

	return series.New(bars, series.Metadata{
		Symbol:         inst.Symbol(),
		Period:         p,
		RequestedStart: start,
		RequestedEnd:   end,
		DataProvider:   ibkrName,
		ExpirationDate: expirationOf(bars),
		CreatedDate:    time.Now().UTC(),
	}), nil
}

// resolveConid looks up the contract id for an instrument, caching per symbol.
func (i *IBKR) resolveConid(ctx context.Context, inst instrument.Instrument) (int, error) {
	symbol := barchartSymbol(inst) // contract code for futures, plain symbol otherwise
	i.mu.Lock()
	if conid, ok := i.conids[symbol]; ok {
		i.mu.Unlock()
		return conid, nil
	}
	i.mu.Unlock()

	secType := map[instrument.AssetClass]string{
		instrument.ClassFuture: "FUT",
		instrument.ClassStock:  "STK",
		instrument.ClassForex:  "CASH",
	}[inst.Class()]

	var results []struct {
		Conid   int    `json:"conid"`
		Symbol  string `json:"symbol"`
		SecType string `json:"secType"`
	}
	resp, err := i.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"symbol": symbol, "secType": secType}).
		SetResult(&results).
		Post("/iserver/secdef/search")
	if err != nil {
		return 0, connectionFailed(ibkrName, "secdef search", err)
	}
	if err := ibkrStatusError(resp); err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, errs.New(errs.KindDataNotFound, "IBKR_NO_CONTRACT",
			fmt.Sprintf("ibkr found no contract for %s (%s)", symbol, secType))
	}
	conid := results[0].Conid
	i.mu.Lock()
	i.conids[symbol] = conid
	i.mu.Unlock()
	return conid, nil
}

func ibkrStatusError(resp *resty.Response) error {
	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errs.New(errs.KindAuthenticationFailed, "IBKR_AUTH",
			fmt.Sprintf("ibkr gateway returned %d", code)).
			WithHelp("the gateway session expired", "log in to the gateway and rerun")
	case code == http.StatusTooManyRequests:
		return errs.New(errs.KindRateLimited, "RATE_LIMITED", "ibkr gateway rate limit hit")
	case code == http.StatusNotFound:
		return errs.New(errs.KindDataNotFound, "DATA_NOT_FOUND", "ibkr gateway returned 404")
	case code >= 400:
		return errs.New(errs.KindProvider, "IBKR_STATUS",
			fmt.Sprintf("ibkr gateway returned %d", code))
	default:
		return nil
	}
}
