package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/vortexdl/vortex/internal/errs"
	"github.com/vortexdl/vortex/internal/instrument"
	"github.com/vortexdl/vortex/internal/period"
	"github.com/vortexdl/vortex/internal/series"
)

const (
	barchartName    = "barchart"
	barchartBaseURL = "https://www.barchart.com"

	barchartIntradayLayout = "01/02/2006 15:04"
	barchartDailyLayout    = "2006-01-02"

	// barchartDownloadLimit is the row cap of one /my/download request;
	// advertised record caps must not exceed it or planned windows truncate.
	barchartDownloadLimit = 10000
)

var (
	hiddenTokenRe = regexp.MustCompile(`name="_token"\s+value="([^"]+)"`)
	metaTokenRe   = regexp.MustCompile(`<meta\s+name="csrf-token"\s+content="([^"]+)"`)
)

// Barchart scrapes barchart.com's historical-download surface. The HTTP
// session and cookie jar are shared across all operations of the instance;
// CSRF/XSRF tokens are refreshed after every exchange and carried forward.
type Barchart struct {
	client     *resty.Client
	username   string
	password   string
	dailyLimit int

	mu        sync.Mutex
	loggedIn  bool
	xsrfToken string
}

// BarchartOption tweaks construction; used by tests to point at a fake server.
type BarchartOption func(*Barchart)

func WithBarchartBaseURL(base string) BarchartOption {
	return func(b *Barchart) { b.client.SetBaseURL(base) }
}

func NewBarchart(username, password string, dailyLimit int, timeout time.Duration, opts ...BarchartOption) *Barchart {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(barchartBaseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
	b := &Barchart{
		client:     client,
		username:   username,
		password:   password,
		dailyLimit: dailyLimit,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Barchart) Name() string { return barchartName }

func (b *Barchart) SupportedFrequencies() []period.FrequencyAttributes {
	minutes := func(p period.Period) period.FrequencyAttributes {
		return period.FrequencyAttributes{
			Frequency:  p,
			MaxRecords: barchartDownloadLimit,
			MinStart:   period.MinStart{Relative: 2 * 365 * 24 * time.Hour},
		}
	}
	return []period.FrequencyAttributes{
		minutes(period.Minute1), minutes(period.Minute2), minutes(period.Minute5),
		minutes(period.Minute10), minutes(period.Minute15), minutes(period.Minute20),
		minutes(period.Minute30),
		{
			Frequency:  period.Hour1,
			MaxRecords: barchartDownloadLimit,
			MinStart:   period.MinStart{Relative: 5 * 365 * 24 * time.Hour},
		},
		{
			Frequency:  period.Day1,
			MaxRecords: barchartDownloadLimit,
			MinStart:   period.MinStart{Absolute: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
		{
			Frequency:  period.Week1,
			MaxRecords: barchartDownloadLimit,
			MinStart:   period.MinStart{Absolute: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
		{
			Frequency:  period.Month1,
			MaxRecords: barchartDownloadLimit,
			MinStart:   period.MinStart{Absolute: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
	}
}

// Login fetches the login page, scrapes the hidden CSRF token, and posts the
// credential form. Success is detected by the post landing somewhere other
// than the login URL. Idempotent.
func (b *Barchart) Login(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loggedIn {
		return nil
	}
	if b.username == "" || b.password == "" {
		return errs.New(errs.KindConfiguration, "BARCHART_CREDENTIALS",
			"barchart username and password are required").
			WithHelp("set providers.barchart.username and .password", "add credentials to the config")
	}

	resp, err := b.client.R().SetContext(ctx).Get("/login")
	if err != nil {
		return connectionFailed(barchartName, "login page", err)
	}
	m := hiddenTokenRe.FindStringSubmatch(resp.String())
	if m == nil {
		return errs.New(errs.KindProvider, "BARCHART_LOGIN_FORM",
			"barchart login page had no csrf token")
	}

	resp, err = b.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"email":    b.username,
			"password": b.password,
			"_token":   m[1],
		}).
		Post("/login")
	if err != nil {
		return connectionFailed(barchartName, "login post", err)
	}
	finalURL := resp.RawResponse.Request.URL.String()
	if strings.HasSuffix(finalURL, "/login") {
		return errs.New(errs.KindAuthenticationFailed, "BARCHART_AUTH",
			"barchart rejected the credentials").
			WithHelp("the login form bounced back to /login", "verify username and password")
	}
	b.loggedIn = true
	log.Debug().Str("provider", barchartName).Msg("logged in")
	return nil
}

// Logout ends the session. Never fails when not logged in.
func (b *Barchart) Logout(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.loggedIn {
		return nil
	}
	_, err := b.client.R().SetContext(ctx).Get("/logout")
	b.loggedIn = false
	b.xsrfToken = ""
	if err != nil {
		log.Warn().Str("provider", barchartName).Err(err).Msg("logout request failed")
	}
	return nil
}

func (b *Barchart) FetchHistoricalData(ctx context.Context, inst instrument.Instrument, p period.Period, start, end time.Time) (*series.Series, error) {
	if err := b.Login(ctx); err != nil {
		return nil, err
	}

	symbol := barchartSymbol(inst)
	metaToken, err := b.refreshTokens(ctx, inst, symbol)
	if err != nil {
		return nil, err
	}
	if err := b.checkUsage(ctx, inst, symbol, metaToken); err != nil {
		return nil, err
	}

	payload := b.downloadPayload(inst, symbol, metaToken, p, start, end)
	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetHeader("X-XSRF-TOKEN", b.currentXSRF()).
		SetHeader("Referer", b.client.BaseURL+quotePath(inst, symbol)).
		SetFormData(payload).
		Post("/my/download")
	if err != nil {
		return nil, connectionFailed(barchartName, "download", err)
	}
	b.captureXSRF(resp)
	if err := barchartStatusError(resp); err != nil {
		return nil, err
	}
	body := resp.String()
	if strings.TrimSpace(body) == "" {
		return nil, errs.New(errs.KindDataNotFound, "DATA_NOT_FOUND",
			fmt.Sprintf("barchart returned no data for %s %s", symbol, p))
	}

	cols := columnMap{"Time": colDatetime, "Last": colClose}
	layout := timestampLayout(p, barchartIntradayLayout, barchartDailyLayout)
	bars, err := parseCSVSeries(strings.NewReader(body), cols, layout, usCentral(), barchartName)
	if err != nil {
		return nil, err
	}
	if len(bars) < 3 {
		return nil, errs.New(errs.KindLowData, "LOW_DATA",
			fmt.Sprintf("barchart returned only %d rows for %s %s", len(bars), symbol, p))
	}

	return series.New(bars, series.Metadata{
		Symbol:         inst.Symbol(),
		Period:         p,
		RequestedStart: start,
		RequestedEnd:   end,
		DataProvider:   barchartName,
		ExpirationDate: expirationOf(bars),
		CreatedDate:    time.Now().UTC(),
	}), nil
}

// refreshTokens loads the instrument's historical-download page, scraping the
// CSRF meta token and picking up the XSRF cookie for the next POSTs.
func (b *Barchart) refreshTokens(ctx context.Context, inst instrument.Instrument, symbol string) (string, error) {
	resp, err := b.client.R().SetContext(ctx).Get(quotePath(inst, symbol))
	if err != nil {
		return "", connectionFailed(barchartName, "download page", err)
	}
	b.captureXSRF(resp)
	if err := barchartStatusError(resp); err != nil {
		return "", err
	}
	m := metaTokenRe.FindStringSubmatch(resp.String())
	if m == nil {
		return "", errs.New(errs.KindProvider, "BARCHART_META_TOKEN",
			fmt.Sprintf("no csrf meta tag on download page for %s", symbol))
	}
	return m[1], nil
}

// checkUsage runs the pre-flight allowance probe: the download endpoint with
// onlyCheckPermissions returns the current usage count.
func (b *Barchart) checkUsage(ctx context.Context, inst instrument.Instrument, symbol, metaToken string) error {
	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetHeader("X-XSRF-TOKEN", b.currentXSRF()).
		SetHeader("Referer", b.client.BaseURL+quotePath(inst, symbol)).
		SetFormData(map[string]string{
			"_token":               metaToken,
			"onlyCheckPermissions": "true",
		}).
		SetResult(&barchartUsage{}).
		Post("/my/download")
	if err != nil {
		return connectionFailed(barchartName, "usage check", err)
	}
	b.captureXSRF(resp)
	if err := barchartStatusError(resp); err != nil {
		return err
	}
	usage, ok := resp.Result().(*barchartUsage)
	if !ok || usage == nil {
		return errs.New(errs.KindProvider, "BARCHART_USAGE",
			"barchart usage check returned an unreadable response")
	}
	if usage.Error != nil {
		return errs.New(errs.KindAllowanceExceeded, "ALLOWANCE_EXCEEDED",
			fmt.Sprintf("barchart usage check error: %v", usage.Error)).
			WithHelp("the provider refused further downloads today", "resume tomorrow or raise the account plan")
	}
	count := usage.Count()
	if b.dailyLimit > 0 && count > b.dailyLimit {
		return errs.New(errs.KindAllowanceExceeded, "ALLOWANCE_EXCEEDED",
			fmt.Sprintf("barchart usage %d exceeds daily limit %d", count, b.dailyLimit)).
			WithContext("count", count).
			WithContext("daily_limit", b.dailyLimit).
			WithHelp("the self-imposed daily allowance is spent", "resume tomorrow or raise daily_limit")
	}
	return nil
}

type barchartUsage struct {
	Success  bool `json:"success"`
	RawCount any  `json:"count"`
	Error    any  `json:"error,omitempty"`
}

// Count tolerates the count arriving as a number or a string.
func (u *barchartUsage) Count() int {
	switch v := u.RawCount.(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

func (b *Barchart) downloadPayload(inst instrument.Instrument, symbol, metaToken string, p period.Period, start, end time.Time) map[string]string {
	payload := map[string]string{
		"_token":     metaToken,
		"fileName":   fmt.Sprintf("%s_%s", symbol, p),
		"symbol":     symbol,
		"fields":     "tradeTime.format(m/d/Y),openPrice,highPrice,lowPrice,lastPrice,volume,openInterest",
		"startDate":  start.In(usCentral()).Format("2006-01-02"),
		"endDate":    end.In(usCentral()).Format("2006-01-02"),
		"orderBy":    "tradeTime",
		"orderDir":   "asc",
		"method":     "historical",
		"limit":      strconv.Itoa(barchartDownloadLimit),
		"customView": "true",
	}
	if p.Intraday() {
		payload["type"] = "minutes"
		payload["interval"] = strconv.Itoa(int(p.Duration().Minutes()))
	} else {
		payload["type"] = "eod"
		switch p {
		case period.Week1:
			payload["period"] = "weekly"
		case period.Month1, period.Month3:
			payload["period"] = "monthly"
		default:
			payload["period"] = "daily"
		}
	}
	return payload
}

func (b *Barchart) currentXSRF() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.xsrfToken
}

// captureXSRF carries forward the XSRF-TOKEN cookie from any response,
// URL-decoded as the header requires.
func (b *Barchart) captureXSRF(resp *resty.Response) {
	for _, c := range resp.Cookies() {
		if c.Name == "XSRF-TOKEN" {
			if decoded, err := url.QueryUnescape(c.Value); err == nil {
				b.mu.Lock()
				b.xsrfToken = decoded
				b.mu.Unlock()
			}
		}
	}
}

// quotePath maps the instrument shape onto barchart's URL space.
func quotePath(inst instrument.Instrument, symbol string) string {
	var section string
	switch inst.Class() {
	case instrument.ClassFuture:
		section = "futures"
	case instrument.ClassForex:
		section = "forex"
	default:
		section = "stocks"
	}
	return fmt.Sprintf("/%s/quotes/%s/historical-download", section, symbol)
}

// barchartSymbol is the provider-facing symbol: the contract code for
// futures, the plain symbol otherwise.
func barchartSymbol(inst instrument.Instrument) string {
	if fut, ok := inst.(instrument.Future); ok {
		return fut.FuturesCode
	}
	return inst.Symbol()
}

func barchartStatusError(resp *resty.Response) error {
	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return errs.New(errs.KindDataNotFound, "DATA_NOT_FOUND",
			"barchart returned 404")
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errs.New(errs.KindAuthenticationFailed, "BARCHART_AUTH",
			fmt.Sprintf("barchart returned %d", code)).
			WithHelp("the session is no longer authenticated", "check credentials and log in again")
	case code == http.StatusTooManyRequests:
		e := errs.New(errs.KindRateLimited, "RATE_LIMITED",
			"barchart rate limit hit")
		if ra := resp.Header().Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				e = e.WithRetryAfter(time.Duration(secs) * time.Second)
			}
		}
		return e
	case code >= 500:
		return errs.New(errs.KindProvider, "BARCHART_SERVER",
			fmt.Sprintf("barchart returned %d", code))
	case code >= 400:
		return errs.New(errs.KindProvider, "BARCHART_STATUS",
			fmt.Sprintf("barchart returned %d", code))
	default:
		return nil
	}
}

func connectionFailed(providerName, op string, err error) error {
	return errs.Wrap(errs.KindConnectionFailed, "CONNECTION_FAILED",
		fmt.Sprintf("%s: %s request failed", providerName, op), err).
		WithHelp("network error, timeout, or DNS failure", "check connectivity and retry")
}
