package telegram

import (
	"errors"
	"strings"
	"testing"

	"gift_relay/models"
	"gift_relay/pkg/storage"

	"github.com/gotd/td/tg"
)

// TestFindGift проверяет поиск подарка по ID.
func TestFindGift(t *testing.T) {
	gifts := []Gift{{ID: 1, Stars: 10}, {ID: 2, Stars: 25}}
	if g := findGift(gifts, 2); g == nil || g.Stars != 25 {
		t.Fatalf("подарок 2 не найден: %+v", g)
	}
	if g := findGift(gifts, 99); g != nil {
		t.Fatalf("найден несуществующий подарок: %+v", g)
	}
}

// TestAvailableGifts проверяет, что распроданные позиции пропускаются
// и соблюдается лимит.
func TestAvailableGifts(t *testing.T) {
	gifts := []Gift{
		{ID: 1, SoldOut: true},
		{ID: 2}, {ID: 3}, {ID: 4},
	}
	got := availableGifts(gifts, 2)
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 3 {
		t.Fatalf("некорректный список альтернатив: %+v", got)
	}
}

// TestCheckGiftAvailable проверяет решение "оплачивать или нет":
// отсутствующий и распроданный подарок обрывают отправку
// GiftUnavailableError с альтернативами ещё до запроса формы оплаты.
func TestCheckGiftAvailable(t *testing.T) {
	gifts := []Gift{
		{ID: 1, Stars: 10},
		{ID: 2, Stars: 25, SoldOut: true},
		{ID: 3, Stars: 50},
	}

	if err := checkGiftAvailable(gifts, 1); err != nil {
		t.Fatalf("доступный подарок отклонён: %v", err)
	}

	var unavailable *GiftUnavailableError
	err := checkGiftAvailable(gifts, 99)
	if !errors.As(err, &unavailable) {
		t.Fatalf("ожидался GiftUnavailableError, получено %v", err)
	}
	if unavailable.GiftID != 99 {
		t.Fatalf("в ошибке не тот подарок: %d", unavailable.GiftID)
	}
	if len(unavailable.Alternatives) != 2 || unavailable.Alternatives[0].ID != 1 || unavailable.Alternatives[1].ID != 3 {
		t.Fatalf("некорректные альтернативы: %+v", unavailable.Alternatives)
	}

	// Распроданный подарок отклоняется так же, как отсутствующий.
	if err := checkGiftAvailable(gifts, 2); !errors.As(err, &unavailable) {
		t.Fatalf("распроданный подарок не отклонён: %v", err)
	}
}

// TestGiftUnavailableError проверяет текст ошибки с альтернативами и без.
func TestGiftUnavailableError(t *testing.T) {
	err := &GiftUnavailableError{GiftID: 7, Alternatives: []Gift{{ID: 2, Stars: 50}, {ID: 3, Stars: 100}}}
	msg := err.Error()
	if !strings.Contains(msg, "подарок 7 недоступен") {
		t.Fatalf("в тексте нет идентификатора подарка: %q", msg)
	}
	if !strings.Contains(msg, "2 (50 звёзд)") || !strings.Contains(msg, "3 (100 звёзд)") {
		t.Fatalf("в тексте нет альтернатив: %q", msg)
	}

	err = &GiftUnavailableError{GiftID: 7}
	if !strings.Contains(err.Error(), "доступных подарков сейчас нет") {
		t.Fatalf("некорректный текст без альтернатив: %q", err.Error())
	}
}

// TestPaymentFormID проверяет извлечение идентификатора формы оплаты
// из каждой разновидности ответа.
func TestPaymentFormID(t *testing.T) {
	cases := []struct {
		form tg.PaymentsPaymentFormClass
		want int64
	}{
		{&tg.PaymentsPaymentForm{FormID: 1}, 1},
		{&tg.PaymentsPaymentFormStars{FormID: 2}, 2},
		{&tg.PaymentsPaymentFormStarGift{FormID: 3}, 3},
	}
	for _, tc := range cases {
		got, err := paymentFormID(tc.form)
		if err != nil {
			t.Fatalf("неожиданная ошибка для %T: %v", tc.form, err)
		}
		if got != tc.want {
			t.Fatalf("для %T ожидалось %d, получено %d", tc.form, tc.want, got)
		}
	}
}

// TestExecutor_NoSession проверяет быстрый отказ операций без постоянной сессии.
func TestExecutor_NoSession(t *testing.T) {
	store := storage.NewStore(t.TempDir(), nil)
	store.Save(models.Record{ApiID: 1, ApiHash: "h"})
	f := NewFactory(store, nil)

	if _, err := ListGifts(store, f, false); !errors.Is(err, ErrNoSession) {
		t.Fatalf("ListGifts: ожидался ErrNoSession, получено %v", err)
	}
	if err := SendGift(store, f, "123", 1, ""); !errors.Is(err, ErrNoSession) {
		t.Fatalf("SendGift: ожидался ErrNoSession, получено %v", err)
	}
	if _, err := CheckStatus(store, f); !errors.Is(err, ErrNoSession) {
		t.Fatalf("CheckStatus: ожидался ErrNoSession, получено %v", err)
	}
}
