package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gift_relay/pkg/storage"

	"github.com/gotd/td/session"
)

// ErrBadSessionString возвращается, когда строку сессии не удалось разобрать
// ни в одном из поддерживаемых форматов.
var ErrBadSessionString = errors.New("нераспознанный формат строки сессии")

// ImportSession подключается по готовой строке сессии без интерактивных
// шагов. Поддерживаются два формата: собственный base64-экспорт сервиса и
// строковая сессия Telethon (прежняя версия сервиса работала на Telethon).
//
// Запись обновляется только после успешной проверки авторизации; при
// неудаче ничего не сохраняется. Успешный импорт вытесняет любой
// незавершённый вход.
func ImportSession(store *storage.Store, f *Factory, sessionStr string, apiID int, apiHash string) (*Identity, error) {
	if apiID == 0 || apiHash == "" {
		return nil, ErrNotConfigured
	}

	mem := &memorySession{}
	if err := loadPortableSession(mem, sessionStr); err != nil {
		return nil, err
	}

	client, err := f.Build(mem, apiID, apiHash)
	if err != nil {
		return nil, err
	}

	var identity *Identity
	ctx := context.Background()
	err = client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return err
		}
		if !status.Authorized {
			return errors.New("сессия не авторизована")
		}
		me, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("не удалось получить данные аккаунта: %w", err)
		}
		identity = identityOf(me)
		return nil
	})
	if err != nil {
		return nil, err
	}

	rec := store.Load()
	rec.ApiID = apiID
	rec.ApiHash = apiHash
	rec.Session = encodeSession(mem.Bytes())
	rec.Phone = identity.Phone
	// Импорт вытесняет артефакты любого незавершённого входа.
	rec.PhoneCodeHash = ""
	rec.TempSession = ""
	rec.QRTempSession = ""
	store.Save(rec)
	return identity, nil
}

// loadPortableSession кладёт разобранную строку сессии во временное
// хранилище. Сначала пробуем собственный base64-формат, затем Telethon.
func loadPortableSession(mem *memorySession, sessionStr string) error {
	ctx := context.Background()

	if raw, err := decodeSession(sessionStr); err == nil && json.Valid(raw) {
		return mem.StoreSession(ctx, raw)
	}

	data, err := session.TelethonSession(sessionStr)
	if err != nil {
		return ErrBadSessionString
	}
	loader := session.Loader{Storage: mem}
	if err := loader.Save(ctx, data); err != nil {
		return fmt.Errorf("не удалось сохранить импортированную сессию: %w", err)
	}
	return nil
}
