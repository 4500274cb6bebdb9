package telegram

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"gift_relay/pkg/storage"
)

// TestBuildQRToken проверяет сборку ответа с токеном: кодирование токена,
// ссылку tg://login и наличие PNG.
func TestBuildQRToken(t *testing.T) {
	raw := []byte{1, 2, 3, 250}
	expires := int(time.Now().Add(30 * time.Second).Unix())

	tok := buildQRToken(raw, expires)
	want := base64.RawURLEncoding.EncodeToString(raw)
	if tok.Token != want {
		t.Fatalf("ожидался токен %q, получено %q", want, tok.Token)
	}
	if !strings.HasPrefix(tok.URL, "tg://login?token=") {
		t.Fatalf("некорректная ссылка: %q", tok.URL)
	}
	if tok.PNG == "" {
		t.Fatalf("QR-код не отрисован")
	}
	if _, err := base64.StdEncoding.DecodeString(tok.PNG); err != nil {
		t.Fatalf("PNG не в base64: %v", err)
	}
	if tok.Expires.Unix() != int64(expires) {
		t.Fatalf("ожидался срок %d, получено %d", expires, tok.Expires.Unix())
	}
}

// TestPollQR_NotStarted проверяет отказ опроса без запущенного QR-входа.
func TestPollQR_NotStarted(t *testing.T) {
	store := storage.NewStore(t.TempDir(), nil)
	f := NewFactory(store, nil)

	if _, err := PollQR(store, f); !errors.Is(err, ErrQRNotStarted) {
		t.Fatalf("ожидался ErrQRNotStarted, получено %v", err)
	}
}

// TestConfirmQRPassword_NotStarted проверяет отказ ввода пароля без QR-входа.
func TestConfirmQRPassword_NotStarted(t *testing.T) {
	store := storage.NewStore(t.TempDir(), nil)
	f := NewFactory(store, nil)

	if _, err := ConfirmQRPassword(store, f, "pass"); !errors.Is(err, ErrQRNotStarted) {
		t.Fatalf("ожидался ErrQRNotStarted, получено %v", err)
	}
}
