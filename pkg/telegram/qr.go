package telegram

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"gift_relay/pkg/storage"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"rsc.io/qr"
)

// Статусы опроса QR-входа.
const (
	QRStatusPending         = "pending"          // токен ещё не подтверждён
	QRStatusWaitingPassword = "waiting_password" // требуется пароль 2FA
	QRStatusSuccess         = "success"          // вход завершён
)

// ErrQRNotStarted возвращается, когда QR-вход не был запущен.
var ErrQRNotStarted = errors.New("сначала запустите вход по QR")

// ErrPasswordInvalid — неверный пароль второго фактора. Состояние входа
// не очищается, пароль можно ввести повторно.
var ErrPasswordInvalid = errors.New("неверный пароль двухфакторной аутентификации")

// QRToken — токен входа для отображения QR-кода.
type QRToken struct {
	Token   string    `json:"token"`
	URL     string    `json:"url"`
	PNG     string    `json:"qr_png_base64,omitempty"`
	Expires time.Time `json:"expires"`
}

// QRPollResult — исход одного опроса QR-входа.
type QRPollResult struct {
	Status   string
	Token    *QRToken
	Identity *Identity
}

// StartQR открывает анонимное соединение, запрашивает токен входа и
// сохраняет соединение как qr_temp_session. Токен возвращается для
// отображения QR-кода на стороне вызывающего.
func StartQR(store *storage.Store, f *Factory, apiID int, apiHash string) (*QRToken, error) {
	rec := store.Load()
	rec.ApiID = apiID
	rec.ApiHash = apiHash
	rec.QRTempSession = ""
	store.Save(rec)

	client, err := f.Build(f.sessionStorage(fieldQRTempSession), apiID, apiHash)
	if err != nil {
		return nil, err
	}

	var token *QRToken
	ctx := context.Background()
	err = client.Run(ctx, func(ctx context.Context) error {
		api := tg.NewClient(client)
		res, err := api.AuthExportLoginToken(ctx, &tg.AuthExportLoginTokenRequest{
			APIID:   apiID,
			APIHash: apiHash,
		})
		if err != nil {
			return err
		}
		t, ok := res.(*tg.AuthLoginToken)
		if !ok {
			return fmt.Errorf("неожиданный ответ при выдаче токена: %T", res)
		}
		token = buildQRToken(t.Token, t.Expires)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// PollQR повторяет экспорт токена по сохранённой qr_temp_session.
// Три исхода: токен не подтверждён — возвращается обновлённый токен;
// токен привязан к другому дата-центру — соединение один раз мигрирует
// туда и импортирует токен (повторная миграция — терминальная ошибка);
// токен подтверждён — сессия сохраняется, либо запрашивается второй фактор.
func PollQR(store *storage.Store, f *Factory) (*QRPollResult, error) {
	rec := store.Load()
	if rec.QRTempSession == "" {
		return nil, ErrQRNotStarted
	}

	client, err := f.Build(f.sessionStorage(fieldQRTempSession), 0, "")
	if err != nil {
		return nil, err
	}

	var result *QRPollResult
	ctx := context.Background()
	err = client.Run(ctx, func(ctx context.Context) error {
		api := tg.NewClient(client)
		res, err := api.AuthExportLoginToken(ctx, &tg.AuthExportLoginTokenRequest{
			APIID:   rec.ApiID,
			APIHash: rec.ApiHash,
		})
		if err != nil {
			if tgerr.Is(err, "SESSION_PASSWORD_NEEDED") {
				// Обновлённое состояние соединения уже в qr_temp_session.
				result = &QRPollResult{Status: QRStatusWaitingPassword}
				return nil
			}
			return err
		}

		if m, ok := res.(*tg.AuthLoginTokenMigrateTo); ok {
			if err := client.MigrateTo(ctx, m.DCID); err != nil {
				return fmt.Errorf("миграция в дата-центр %d не удалась: %w", m.DCID, err)
			}
			res, err = api.AuthImportLoginToken(ctx, m.Token)
			if err != nil {
				if tgerr.Is(err, "SESSION_PASSWORD_NEEDED") {
					result = &QRPollResult{Status: QRStatusWaitingPassword}
					return nil
				}
				return err
			}
			if _, again := res.(*tg.AuthLoginTokenMigrateTo); again {
				return errors.New("повторная миграция дата-центра: начните вход по QR заново")
			}
		}

		switch t := res.(type) {
		case *tg.AuthLoginToken:
			result = &QRPollResult{
				Status: QRStatusPending,
				Token:  buildQRToken(t.Token, t.Expires),
			}
			return nil
		case *tg.AuthLoginTokenSuccess:
			me, err := client.Self(ctx)
			if err != nil {
				return fmt.Errorf("не удалось получить данные аккаунта: %w", err)
			}
			result = &QRPollResult{Status: QRStatusSuccess, Identity: identityOf(me)}
			return nil
		default:
			return fmt.Errorf("неожиданный ответ на опрос токена: %T", res)
		}
	})
	if err != nil {
		return nil, err
	}

	if result.Status == QRStatusSuccess {
		promoteQRSession(store, result.Identity)
	}
	return result, nil
}

// ConfirmQRPassword завершает QR-вход, требующий второй фактор.
// Неверный пароль — отдельная повторяемая ошибка, состояние не очищается.
func ConfirmQRPassword(store *storage.Store, f *Factory, password string) (*Identity, error) {
	rec := store.Load()
	if rec.QRTempSession == "" {
		return nil, ErrQRNotStarted
	}

	client, err := f.Build(f.sessionStorage(fieldQRTempSession), 0, "")
	if err != nil {
		return nil, err
	}

	var identity *Identity
	ctx := context.Background()
	err = client.Run(ctx, func(ctx context.Context) error {
		if _, err := client.Auth().Password(ctx, password); err != nil {
			if tgerr.Is(err, "PASSWORD_HASH_INVALID") {
				return ErrPasswordInvalid
			}
			return err
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

	promoteQRSession(store, identity)
	return identity, nil
}

// promoteQRSession делает qr_temp_session постоянной сессией.
func promoteQRSession(store *storage.Store, identity *Identity) {
	rec := store.Load()
	rec.Session = rec.QRTempSession
	rec.QRTempSession = ""
	if identity != nil && identity.Phone != "" {
		rec.Phone = identity.Phone
	}
	store.Save(rec)
}

// buildQRToken собирает ответ с токеном: сырой токен, ссылка tg://login
// и PNG с QR-кодом. Ошибка генерации картинки не мешает вернуть токен.
func buildQRToken(token []byte, expires int) *QRToken {
	encoded := base64.RawURLEncoding.EncodeToString(token)
	t := &QRToken{
		Token:   encoded,
		URL:     "tg://login?token=" + encoded,
		Expires: time.Unix(int64(expires), 0),
	}
	if code, err := qr.Encode(t.URL, qr.M); err == nil {
		t.PNG = base64.StdEncoding.EncodeToString(code.PNG())
	} else {
		log.Printf("[QR] не удалось отрисовать QR-код: %v", err)
	}
	return t
}
