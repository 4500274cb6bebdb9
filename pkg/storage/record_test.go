package storage

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"gift_relay/models"
)

// TestStore_SaveLoad проверяет, что запись переживает цикл сохранения и чтения.
func TestStore_SaveLoad(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	rec := models.Record{ApiID: 12345, ApiHash: "hash", Phone: "+79990000000", Session: "abc"}
	store.Save(rec)

	got := store.Load()
	if got != rec {
		t.Fatalf("ожидалась запись %+v, получено %+v", rec, got)
	}
}

// TestStore_LoadMissing проверяет, что отсутствие файла даёт пустую запись без ошибок.
func TestStore_LoadMissing(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	if got := store.Load(); !got.IsEmpty() {
		t.Fatalf("ожидалась пустая запись, получено %+v", got)
	}
}

// TestStore_LoadCorrupted проверяет деградацию до пустой записи при битом файле.
func TestStore_LoadCorrupted(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, RecordFileName), []byte("{не json"), 0o600); err != nil {
		t.Fatalf("не удалось подготовить файл: %v", err)
	}

	store := NewStore(dir, nil)
	if got := store.Load(); !got.IsEmpty() {
		t.Fatalf("ожидалась пустая запись, получено %+v", got)
	}
}

// backupServer поднимает тестовый бэкап-эндпоинт. Возвращаемая запись отдаётся
// на action=get, каждый запрос увеличивает счётчик.
func backupServer(t *testing.T, stored *models.Record, calls *atomic.Int64, saved chan<- models.Record) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			RelaySecret string         `json:"relay_secret"`
			Action      string         `json:"action"`
			Record      *models.Record `json:"record"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("некорректное тело запроса: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.RelaySecret != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch req.Action {
		case "get":
			json.NewEncoder(w).Encode(map[string]any{"record": stored})
		case "save":
			if saved != nil && req.Record != nil {
				saved <- *req.Record
			}
			w.Write([]byte("{}"))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
}

// TestStore_PullOnce проверяет восстановление из бэкапа при пустом локальном
// файле, зеркалирование на диск и то, что повторный Load в бэкап не ходит,
// даже если файл снова стёрли.
func TestStore_PullOnce(t *testing.T) {
	remote := models.Record{ApiID: 1, ApiHash: "h", Session: "remote-session"}
	var calls atomic.Int64
	srv := backupServer(t, &remote, &calls, nil)
	defer srv.Close()

	dir := t.TempDir()
	store := NewStore(dir, NewBackupClient(srv.URL, "secret"))

	got := store.Load()
	if got.Session != "remote-session" {
		t.Fatalf("ожидалась запись из бэкапа, получено %+v", got)
	}
	if _, err := os.Stat(filepath.Join(dir, RecordFileName)); err != nil {
		t.Fatalf("запись не зеркалирована на диск: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("ожидался один запрос к бэкапу, было %d", calls.Load())
	}

	// Стираем файл "из-под" процесса: повторный Load не должен ходить в бэкап.
	if err := os.Remove(filepath.Join(dir, RecordFileName)); err != nil {
		t.Fatalf("не удалось удалить файл: %v", err)
	}
	if got := store.Load(); !got.IsEmpty() {
		t.Fatalf("ожидалась пустая запись, получено %+v", got)
	}
	if calls.Load() != 1 {
		t.Fatalf("повторный Load сходил в бэкап: %d запросов", calls.Load())
	}
}

// TestStore_PartialLocalWins проверяет, что частично заполненная локальная
// запись (незавершённый вход) возвращается как есть и бэкап не опрашивается.
func TestStore_PartialLocalWins(t *testing.T) {
	remote := models.Record{ApiID: 1, ApiHash: "h", Session: "stale-remote"}
	var calls atomic.Int64
	srv := backupServer(t, &remote, &calls, nil)
	defer srv.Close()

	dir := t.TempDir()
	store := NewStore(dir, NewBackupClient(srv.URL, "secret"))
	partial := models.Record{ApiID: 2, ApiHash: "hh", Phone: "+7999", PhoneCodeHash: "pch", TempSession: "tmp"}
	store.Save(partial)

	if got := store.Load(); got != partial {
		t.Fatalf("частичная запись потеряна: %+v", got)
	}
	if calls.Load() != 0 {
		t.Fatalf("бэкап не должен был опрашиваться, было %d запросов", calls.Load())
	}
}

// TestStore_SavePushesBackup проверяет, что запись с сессией асинхронно
// улетает в бэкап целиком.
func TestStore_SavePushesBackup(t *testing.T) {
	saved := make(chan models.Record, 1)
	var calls atomic.Int64
	srv := backupServer(t, nil, &calls, saved)
	defer srv.Close()

	store := NewStore(t.TempDir(), NewBackupClient(srv.URL, "secret"))
	rec := models.Record{ApiID: 7, ApiHash: "h", Session: "live"}
	store.Save(rec)

	select {
	case got := <-saved:
		if got != rec {
			t.Fatalf("в бэкап ушла не та запись: %+v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("push в бэкап не произошёл")
	}
}

// TestStore_SaveWithoutSessionNoPush проверяет, что запись без сессии
// в бэкап не отправляется.
func TestStore_SaveWithoutSessionNoPush(t *testing.T) {
	var calls atomic.Int64
	srv := backupServer(t, nil, &calls, nil)
	defer srv.Close()

	store := NewStore(t.TempDir(), NewBackupClient(srv.URL, "secret"))
	store.Save(models.Record{ApiID: 7, ApiHash: "h", PhoneCodeHash: "pch"})

	time.Sleep(200 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("push без сессии: %d запросов", calls.Load())
	}
}

// TestNewBackupClient_Disabled проверяет, что без URL или секрета бэкап выключен.
func TestNewBackupClient_Disabled(t *testing.T) {
	if NewBackupClient("", "secret") != nil {
		t.Fatalf("без URL бэкап должен быть выключен")
	}
	if NewBackupClient("http://example.com", "") != nil {
		t.Fatalf("без секрета бэкап должен быть выключен")
	}
}

// TestStore_SaveBestEffort проверяет, что ошибка записи на диск не паникует
// и не мешает следующему чтению.
func TestStore_SaveBestEffort(t *testing.T) {
	dir := t.TempDir()
	// Занимаем путь файла каталогом, чтобы запись гарантированно не удалась.
	if err := os.MkdirAll(filepath.Join(dir, RecordFileName), 0o755); err != nil {
		t.Fatalf("не удалось подготовить каталог: %v", err)
	}

	store := NewStore(dir, nil)
	store.Save(models.Record{ApiID: 1, ApiHash: "h"})
	if got := store.Load(); !got.IsEmpty() {
		t.Fatalf("ожидалась пустая запись, получено %+v", got)
	}
}
