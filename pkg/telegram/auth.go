package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gift_relay/pkg/storage"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// ErrFlowNotStarted возвращается при попытке подтвердить вход,
// для которого не был запрошен код.
var ErrFlowNotStarted = errors.New("сначала отправьте код")

// ErrNoInput возвращается, когда в подтверждение не передали ни код, ни пароль.
var ErrNoInput = errors.New("введите код или пароль")

// Identity — сводка об авторизованном аккаунте.
type Identity struct {
	Name     string
	ID       int64
	Username string
	Phone    string
}

func identityOf(u *tg.User) *Identity {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	return &Identity{Name: name, ID: u.ID, Username: u.Username, Phone: u.Phone}
}

// CodeSent описывает результат запроса кода: каким каналом он доставлен
// и был ли это повтор по уже существующему запросу.
type CodeSent struct {
	Channel string
	Resent  bool
}

// RequestCode запрашивает код подтверждения для номера.
// Учётные данные сохраняются до сетевого вызова: даже если запрос кода
// упадёт, повторный вызов не потребует вводить их заново.
//
// При resend и живой паре phone_code_hash+temp_session код повторно
// отправляется альтернативным каналом; любая ошибка на этом пути
// приводит к выдаче нового кода.
func RequestCode(store *storage.Store, f *Factory, apiID int, apiHash, phone string, resend bool) (*CodeSent, error) {
	persistCredentials(store, apiID, apiHash, phone)

	rec := store.Load()
	if resend && rec.PhoneCodeHash != "" && rec.TempSession != "" {
		sent, err := resendCode(store, f, phone, rec.PhoneCodeHash)
		if err == nil {
			return sent, nil
		}
		log.Printf("[AUTH] повторная отправка не удалась, выдаём новый код: %v", err)
	}

	// Новый код запрашивается на сессии в памяти. Прежняя временная
	// пара остаётся в записи до успешного ответа: если запрос упадёт,
	// её ещё сможет использовать повторная отправка.
	mem := &memorySession{}
	client, err := f.Build(mem, apiID, apiHash)
	if err != nil {
		return nil, err
	}

	var sent *CodeSent
	ctx := context.Background()
	err = client.Run(ctx, func(ctx context.Context) error {
		sentCode, err := client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
		if err != nil {
			return err
		}
		code, ok := sentCode.(*tg.AuthSentCode)
		if !ok {
			return fmt.Errorf("неожиданный тип ответа на запрос кода: %T", sentCode)
		}
		storeCodeState(store, mem.Bytes(), code.PhoneCodeHash)
		sent = &CodeSent{Channel: deliveryChannel(code.Type)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sent, nil
}

// persistCredentials сохраняет учётные данные, не трогая временную пару:
// она принадлежит ещё живому запросу кода.
func persistCredentials(store *storage.Store, apiID int, apiHash, phone string) {
	rec := store.Load()
	rec.ApiID = apiID
	rec.ApiHash = apiHash
	rec.Phone = phone
	store.Save(rec)
}

// storeCodeState записывает новую временную пару, заменяя прежнюю.
func storeCodeState(store *storage.Store, sessionData []byte, codeHash string) {
	rec := store.Load()
	rec.TempSession = encodeSession(sessionData)
	rec.PhoneCodeHash = codeHash
	store.Save(rec)
}

// resendCode просит Telegram продублировать код альтернативным каналом,
// используя временную сессию и хеш от прошлого запроса.
func resendCode(store *storage.Store, f *Factory, phone, codeHash string) (*CodeSent, error) {
	client, err := f.Build(f.sessionStorage(fieldTempSession), 0, "")
	if err != nil {
		return nil, err
	}

	var sent *CodeSent
	ctx := context.Background()
	err = client.Run(ctx, func(ctx context.Context) error {
		api := tg.NewClient(client)
		res, err := api.AuthResendCode(ctx, &tg.AuthResendCodeRequest{
			PhoneNumber:   phone,
			PhoneCodeHash: codeHash,
		})
		if err != nil {
			return err
		}
		code, ok := res.(*tg.AuthSentCode)
		if !ok {
			return fmt.Errorf("неожиданный тип ответа на повторную отправку: %T", res)
		}
		rec := store.Load()
		rec.PhoneCodeHash = code.PhoneCodeHash
		store.Save(rec)
		sent = &CodeSent{Channel: deliveryChannel(code.Type), Resent: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sent, nil
}

// Confirm завершает вход по коду. Пустой password с непустым code —
// обычное подтверждение; ответ "нужен второй фактор" возвращается как
// needPassword=true, при этом обновлённая временная сессия уже сохранена
// и следующий вызов только с паролем продолжит её. Непустой password
// подтверждает второй фактор.
//
// При успехе постоянная сессия записывается, временная пара очищается.
// При любой ошибке Telegram временная пара остаётся — вход можно повторить.
func Confirm(store *storage.Store, f *Factory, code, password string) (identity *Identity, needPassword bool, err error) {
	rec := store.Load()
	if rec.TempSession == "" || rec.PhoneCodeHash == "" {
		return nil, false, ErrFlowNotStarted
	}
	if code == "" && password == "" {
		return nil, false, ErrNoInput
	}

	client, err := f.Build(f.sessionStorage(fieldTempSession), 0, "")
	if err != nil {
		return nil, false, err
	}

	ctx := context.Background()
	err = client.Run(ctx, func(ctx context.Context) error {
		a := client.Auth()
		if password == "" {
			if _, err := a.SignIn(ctx, rec.Phone, code, rec.PhoneCodeHash); err != nil {
				if errors.Is(err, auth.ErrPasswordAuthNeeded) {
					// Состояние соединения с ожидающим вторым фактором
					// уже сохранено в temp_session через SessionStorage.
					needPassword = true
					return nil
				}
				return err
			}
		} else {
			if _, err := a.Password(ctx, password); err != nil {
				return err
			}
		}

		me, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("не удалось получить данные аккаунта: %w", err)
		}
		identity = identityOf(me)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if needPassword {
		return nil, true, nil
	}

	// Повышаем временную сессию до постоянной и чистим артефакты входа.
	rec = store.Load()
	rec.Session = rec.TempSession
	rec.TempSession = ""
	rec.PhoneCodeHash = ""
	if identity != nil && identity.Phone != "" {
		rec.Phone = identity.Phone
	}
	store.Save(rec)
	return identity, false, nil
}

// deliveryChannel переводит тип доставки кода в человекочитаемое описание.
func deliveryChannel(t tg.AuthSentCodeTypeClass) string {
	switch t.(type) {
	case *tg.AuthSentCodeTypeApp:
		return "код в приложении Telegram"
	case *tg.AuthSentCodeTypeSMS:
		return "SMS"
	case *tg.AuthSentCodeTypeCall:
		return "голосовой звонок"
	case *tg.AuthSentCodeTypeFlashCall:
		return "флеш-звонок"
	case *tg.AuthSentCodeTypeMissedCall:
		return "пропущенный звонок"
	case *tg.AuthSentCodeTypeEmailCode:
		return "код на электронную почту"
	case *tg.AuthSentCodeTypeFragmentSMS:
		return "SMS через Fragment"
	default:
		return "неизвестный канал"
	}
}
