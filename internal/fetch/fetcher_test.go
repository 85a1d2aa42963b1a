package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestFetcher(t *testing.T) *HTTPFetcher {
	t.Helper()
	// Effectively unthrottled so tests stay fast.
	return NewHTTPFetcher(2*time.Second, WithRetailerRate(rate.Inf, 1))
}

func serve(t *testing.T, html string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(html))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_RetailerSelector(t *testing.T) {
	srv := serve(t, `<html><body>
		<span data-testid="product-price">€ 79,95</span>
	</body></html>`)

	q, err := newTestFetcher(t).Fetch(context.Background(), RetailerZalando, srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if q.Price.String() != "79.95" {
		t.Fatalf("price = %s, want 79.95", q.Price)
	}
	if q.Currency != "EUR" {
		t.Fatalf("currency = %s, want EUR", q.Currency)
	}
	if !q.Available {
		t.Fatalf("expected available")
	}
}

func TestFetch_MetaTagFallback(t *testing.T) {
	srv := serve(t, `<html><head>
		<meta property="product:price:amount" content="129.00">
		<meta property="product:price:currency" content="EUR">
	</head><body><h1>Jas</h1></body></html>`)

	q, err := newTestFetcher(t).Fetch(context.Background(), RetailerOther, srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if q.Price.String() != "129" {
		t.Fatalf("price = %s, want 129", q.Price)
	}
}

func TestFetch_JSONLDFallback(t *testing.T) {
	srv := serve(t, `<html><head>
		<script type="application/ld+json">
		{"@type":"Product","name":"Sneaker","offers":{"@type":"Offer","price":"89.99","priceCurrency":"EUR"}}
		</script>
	</head><body></body></html>`)

	q, err := newTestFetcher(t).Fetch(context.Background(), RetailerBijenkorf, srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if q.Price.String() != "89.99" {
		t.Fatalf("price = %s, want 89.99", q.Price)
	}
}

func TestFetch_OutOfStock(t *testing.T) {
	srv := serve(t, `<html><body>
		<span class="product-price">€ 59,95</span>
		<p>Dit artikel is helaas uitverkocht.</p>
	</body></html>`)

	q, err := newTestFetcher(t).Fetch(context.Background(), RetailerBijenkorf, srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if q.Available {
		t.Fatalf("expected out-of-stock quote")
	}
	if q.Price.String() != "59.95" {
		t.Fatalf("price = %s, want 59.95", q.Price)
	}
}

func TestFetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestFetcher(t).Fetch(context.Background(), RetailerZalando, srv.URL)
	if KindOf(err) != KindHTTP {
		t.Fatalf("kind = %q, want %q (err=%v)", KindOf(err), KindHTTP, err)
	}
}

func TestFetch_Unparseable(t *testing.T) {
	srv := serve(t, `<html><body><h1>Welkom</h1><p>Geen prijzen hier.</p></body></html>`)

	_, err := newTestFetcher(t).Fetch(context.Background(), RetailerZalando, srv.URL)
	if KindOf(err) != KindParse {
		t.Fatalf("kind = %q, want %q (err=%v)", KindOf(err), KindParse, err)
	}
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	f := NewHTTPFetcher(50*time.Millisecond, WithRetailerRate(rate.Inf, 1))
	_, err := f.Fetch(context.Background(), RetailerZalando, srv.URL)
	if KindOf(err) != KindTimeout {
		t.Fatalf("kind = %q, want %q (err=%v)", KindOf(err), KindTimeout, err)
	}
}

func TestFetch_NetworkUnreachable(t *testing.T) {
	f := newTestFetcher(t)
	_, err := f.Fetch(context.Background(), RetailerZalando, "http://127.0.0.1:1/nope")
	if KindOf(err) != KindNetwork {
		t.Fatalf("kind = %q, want %q (err=%v)", KindOf(err), KindNetwork, err)
	}
}
