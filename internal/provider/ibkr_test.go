package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexdl/vortex/internal/errs"
	"github.com/vortexdl/vortex/internal/instrument"
	"github.com/vortexdl/vortex/internal/period"
)

// ibkrFake emulates the client portal gateway surface used by the provider.
type ibkrFake struct {
	authenticated bool
	searches      int
}

func (f *ibkrFake) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /iserver/auth/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"authenticated":%t,"connected":true}`, f.authenticated)
	})

	mux.HandleFunc("POST /iserver/secdef/search", func(w http.ResponseWriter, r *http.Request) {
		f.searches++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"conid":495512572,"symbol":"GCH24","secType":"FUT"}]`)
	})

	mux.HandleFunc("GET /iserver/marketdata/history", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("conid") != "495512572" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
		fmt.Fprintf(w, `{"data":[
			{"t":%d,"o":2050.5,"h":2062.1,"l":2048.0,"c":2060.3,"v":185000,"wap":2055.0,"count":9000},
			{"t":%d,"o":2060.3,"h":2071.8,"l":2055.2,"c":2070.9,"v":190000,"wap":2065.0,"count":9100},
			{"t":%d,"o":2070.9,"h":2075.0,"l":2061.4,"c":2064.2,"v":175000,"wap":2068.0,"count":8800}
		]}`, base.UnixMilli(), base.AddDate(0, 0, 1).UnixMilli(), base.AddDate(0, 0, 2).UnixMilli())
	})

	return mux
}

func newTestIBKR(t *testing.T, f *ibkrFake) *IBKR {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewIBKR("localhost", 5000, 1, time.Second, WithIBKRBaseURL(srv.URL))
}

func TestIBKRLoginVerifiesSession(t *testing.T) {
	ib := newTestIBKR(t, &ibkrFake{authenticated: true})
	require.NoError(t, ib.Login(context.Background()))
	require.NoError(t, ib.Login(context.Background()), "idempotent")
}

func TestIBKRLoginDeadSession(t *testing.T) {
	ib := newTestIBKR(t, &ibkrFake{authenticated: false})
	err := ib.Login(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.KindAuthenticationFailed, errs.KindOf(err))
}

func TestIBKRFetch(t *testing.T) {
	fake := &ibkrFake{authenticated: true}
	ib := newTestIBKR(t, fake)
	fut, err := instrument.NewFuture("GC", 2024, 'H', time.Time{}, 120)
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	s, err := ib.FetchHistoricalData(context.Background(), fut, period.Day1, start, end)
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())

	assert.Equal(t, 2060.3, s.Bars[0].Close)
	assert.Equal(t, 2055.0, s.Bars[0].Extra["WAP"])
	assert.Equal(t, 9000.0, s.Bars[0].Extra["Count"])
	assert.Equal(t, "ibkr", s.Meta.DataProvider)

	// the conid lookup is cached per contract code
	_, err = ib.FetchHistoricalData(context.Background(), fut, period.Day1, start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.searches)
}

func TestIBKRUnsupportedPeriod(t *testing.T) {
	ib := newTestIBKR(t, &ibkrFake{authenticated: true})
	_, err := ib.FetchHistoricalData(context.Background(), instrument.Stock{Sym: "AAPL"}, period.Month3,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Equal(t, errs.KindProvider, errs.KindOf(err))
}

func TestIBKRLogoutWithoutSession(t *testing.T) {
	ib := NewIBKR("localhost", 5000, 1, time.Second)
	assert.NoError(t, ib.Logout(context.Background()))
}
