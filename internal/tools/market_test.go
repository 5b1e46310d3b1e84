package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCryptoPriceSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("vs_currency"); got != "inr" {
			t.Errorf("vs_currency = %q, want inr", got)
		}
		if got := r.URL.Query().Get("ids"); got != "bitcoin" {
			t.Errorf("ids = %q, want bitcoin", got)
		}
		fmt.Fprint(w, `[{"name":"Bitcoin","symbol":"btc","current_price":5100000.5}]`)
	}))
	defer srv.Close()

	r := NewRegistry(NewMarketClientWithBaseURL(srv.URL, testLogger()), testLogger())

	result := execTool(t, r, nil, "cryptoPrice", map[string]any{"coinName": "Bitcoin"})

	if result["coin_name"] != "Bitcoin" {
		t.Errorf("coin_name = %v, want Bitcoin", result["coin_name"])
	}
	if result["symbol"] != "btc" {
		t.Errorf("symbol = %v, want btc", result["symbol"])
	}
	if result["price_inr"] != 5100000.5 {
		t.Errorf("price_inr = %v, want 5100000.5", result["price_inr"])
	}
}

func TestCryptoPriceNullPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"name":"Obscurecoin","symbol":"obs","current_price":null}]`)
	}))
	defer srv.Close()

	r := NewRegistry(NewMarketClientWithBaseURL(srv.URL, testLogger()), testLogger())

	result := execTool(t, r, nil, "cryptoPrice", map[string]any{"coinName": "obscurecoin"})

	price, present := result["price_inr"]
	if !present || price != nil {
		t.Errorf("price_inr = %v, want explicit nil", price)
	}
}

func TestCryptoPriceUnknownCoin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	r := NewRegistry(NewMarketClientWithBaseURL(srv.URL, testLogger()), testLogger())

	result := execTool(t, r, nil, "cryptoPrice", map[string]any{"coinName": "notacoin"})

	errMsg, _ := result["error"].(string)
	if !strings.HasPrefix(errMsg, "Failed to fetch price for notacoin") {
		t.Errorf("error = %v, want fetch failure for notacoin", result["error"])
	}
}

func TestCryptoPriceMissingArg(t *testing.T) {
	r := testRegistry(t)

	result := execTool(t, r, nil, "cryptoPrice", nil)

	if result["error"] != "coinName is required" {
		t.Errorf("error = %v, want coinName is required", result["error"])
	}
}

func TestMarketPriceContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewMarketClientWithBaseURL(srv.URL, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Price(ctx, "bitcoin"); err == nil {
		t.Error("expected an error from a cancelled context")
	}
}
