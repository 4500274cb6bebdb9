package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gift_relay/pkg/storage"

	"github.com/gotd/td/tg"
)

// ErrNoSession возвращается операциями, которым нужна постоянная сессия,
// когда её нет. Сетевые вызовы при этом не выполняются.
var ErrNoSession = errors.New("сессия не настроена")

// AccountStatus — результат проверки сохранённой сессии.
type AccountStatus struct {
	Connected bool
	Identity  *Identity
	// Balance — баланс звёзд; nil, если запрос баланса не удался
	// (это не повод считать проверку неуспешной).
	Balance *int64
}

// CheckStatus подключается по постоянной сессии и проверяет авторизацию.
// При успехе дополнительно запрашивается баланс; его ошибка только логируется.
func CheckStatus(store *storage.Store, f *Factory) (*AccountStatus, error) {
	rec := store.Load()
	if !rec.HasSession() {
		return nil, ErrNoSession
	}

	client, err := f.Build(f.sessionStorage(fieldSession), 0, "")
	if err != nil {
		return nil, err
	}

	result := &AccountStatus{}
	ctx := context.Background()
	err = client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return err
		}
		if !status.Authorized {
			return nil
		}
		result.Connected = true
		result.Identity = identityOf(status.User)

		api := tg.NewClient(client)
		if balance, err := starsBalance(ctx, api); err != nil {
			log.Printf("[STATUS] не удалось получить баланс: %v", err)
		} else {
			result.Balance = &balance
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// starsBalance возвращает баланс звёзд текущего аккаунта.
func starsBalance(ctx context.Context, api *tg.Client) (int64, error) {
	status, err := api.PaymentsGetStarsStatus(ctx, &tg.PaymentsGetStarsStatusRequest{
		Peer: &tg.InputPeerSelf{},
	})
	if err != nil {
		return 0, err
	}
	return starsAmountValue(status.Balance)
}

// starsAmountValue извлекает целое число звёзд из баланса.
// Баланс в другой валюте считается недоступным.
func starsAmountValue(balance tg.StarsAmountClass) (int64, error) {
	amount, ok := balance.(*tg.StarsAmount)
	if !ok {
		return 0, fmt.Errorf("неожиданный тип баланса: %T", balance)
	}
	return amount.Amount, nil
}
