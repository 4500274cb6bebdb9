package telegram

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"gift_relay/pkg/storage"

	"golang.org/x/net/proxy"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/dcs"
)

// ErrNotConfigured возвращается, когда api_id и api_hash не заданы —
// без них подключение невозможно, и пытаться не нужно.
var ErrNotConfigured = errors.New("не заданы API ID и API Hash")

// Proxy описывает SOCKS5-прокси для исходящих соединений.
type Proxy struct {
	Addr     string
	Login    string
	Password string
}

// ParseProxy разбирает строку вида user:pass@host:port или host:port.
// Пустая строка означает отсутствие прокси.
func ParseProxy(value string) (*Proxy, error) {
	if value == "" {
		return nil, nil
	}
	p := &Proxy{Addr: value}
	if at := strings.LastIndex(value, "@"); at >= 0 {
		creds := value[:at]
		p.Addr = value[at+1:]
		if colon := strings.Index(creds, ":"); colon >= 0 {
			p.Login = creds[:colon]
			p.Password = creds[colon+1:]
		} else {
			p.Login = creds
		}
	}
	if p.Addr == "" || !strings.Contains(p.Addr, ":") {
		return nil, fmt.Errorf("некорректный адрес прокси: %q", value)
	}
	return p, nil
}

// Factory собирает клиентов Telegram из текущей записи хранилища.
// Сама по себе состояния не имеет: каждый вызов читает запись заново.
type Factory struct {
	store *storage.Store
	proxy *Proxy
}

func NewFactory(store *storage.Store, p *Proxy) *Factory {
	return &Factory{store: store, proxy: p}
}

// Build создаёт неподключённый клиент с указанным хранилищем сессии.
// apiID и apiHash могут переопределять значения из записи — это нужно
// незавершённым входам, где подтверждённые данные ещё не совпадают
// с сохранёнными. Нулевые переопределения берутся из записи.
func (f *Factory) Build(sess session.Storage, apiID int, apiHash string) (*telegram.Client, error) {
	rec := f.store.Load()
	if apiID == 0 {
		apiID = rec.ApiID
	}
	if apiHash == "" {
		apiHash = rec.ApiHash
	}
	if apiID == 0 || apiHash == "" {
		return nil, ErrNotConfigured
	}

	opts := telegram.Options{
		SessionStorage: sess,
		Device: telegram.DeviceConfig{
			DeviceModel:   "LunaGifts Relay",
			SystemVersion: "1.0",
			AppVersion:    "1.0",
		},
	}
	if f.proxy != nil {
		var auth *proxy.Auth
		if f.proxy.Login != "" || f.proxy.Password != "" {
			auth = &proxy.Auth{User: f.proxy.Login, Password: f.proxy.Password}
		}
		d, err := proxy.SOCKS5("tcp", f.proxy.Addr, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("proxy dialer: %w", err)
		}
		dc, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("proxy dialer missing context")
		}
		opts.Resolver = dcs.Plain(dcs.PlainOptions{Dial: dc.DialContext})
		log.Printf("[PROXY] исходящие соединения через %s", f.proxy.Addr)
	}
	return telegram.NewClient(apiID, apiHash, opts), nil
}

// sessionStorage возвращает хранилище сессии, привязанное к полю записи.
func (f *Factory) sessionStorage(field sessionField) session.Storage {
	return &recordSession{store: f.store, field: field}
}
