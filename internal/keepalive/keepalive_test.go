package keepalive

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// TestPingURL проверяет построение адреса health-эндпоинта.
func TestPingURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://relay.example.com", "https://relay.example.com/health"},
		{"https://relay.example.com/", "https://relay.example.com/health"},
	}
	for _, tc := range cases {
		if got := pingURL(tc.in); got != tc.want {
			t.Fatalf("pingURL(%q) = %q, ожидалось %q", tc.in, got, tc.want)
		}
	}
}

// TestPing проверяет, что пинг доходит до health-эндпоинта,
// а неуспешный статус не прерывает работу.
func TestPing(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/health" {
			t.Errorf("пинг пришёл не на health-эндпоинт: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ping(pingURL(srv.URL))
	if calls.Load() != 1 {
		t.Fatalf("ожидался один пинг, получено %d", calls.Load())
	}
}

// TestPingClientTimeout: у клиента самопинга обязан быть таймаут,
// иначе один зависший запрос заблокирует все последующие пинги.
func TestPingClientTimeout(t *testing.T) {
	if pingClient.Timeout <= 0 {
		t.Fatal("у клиента самопинга нет таймаута")
	}
}
