package telegram

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"gift_relay/pkg/storage"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
)

// defaultGiftMessage прикладывается к подарку, если вызывающий
// не передал собственный текст.
const defaultGiftMessage = "Подарок от Luna Gifts 🎁"

// Gift — позиция каталога подарков.
type Gift struct {
	ID           int64  `json:"id"`
	Title        string `json:"title,omitempty"`
	Stars        int64  `json:"stars"`
	ConvertStars int64  `json:"convert_stars"`
	Limited      bool   `json:"limited"`
	SoldOut      bool   `json:"sold_out"`
	Remains      int    `json:"remains,omitempty"`
	Total        int    `json:"total,omitempty"`
	Thumbnail    string `json:"thumbnail,omitempty"`

	sticker *tg.Document
}

// GiftUnavailableError — подарок отсутствует в каталоге или распродан.
// В тексте перечисляются доступные альтернативы, чтобы оператор мог
// сразу выбрать замену.
type GiftUnavailableError struct {
	GiftID       int64
	Alternatives []Gift
}

func (e *GiftUnavailableError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "подарок %d недоступен", e.GiftID)
	if len(e.Alternatives) == 0 {
		b.WriteString("; доступных подарков сейчас нет")
		return b.String()
	}
	b.WriteString("; доступны: ")
	for i, g := range e.Alternatives {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d (%d звёзд)", g.ID, g.Stars)
	}
	return b.String()
}

// ListGifts возвращает каталог подарков. При withThumbnails для каждой
// позиции дополнительно скачивается превью стикера; ошибка по отдельной
// позиции пропускается и не валит список.
func ListGifts(store *storage.Store, f *Factory, withThumbnails bool) ([]Gift, error) {
	rec := store.Load()
	if !rec.HasSession() {
		return nil, ErrNoSession
	}

	client, err := f.Build(f.sessionStorage(fieldSession), 0, "")
	if err != nil {
		return nil, err
	}

	var gifts []Gift
	ctx := context.Background()
	err = client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return err
		}
		if !status.Authorized {
			return errors.New("сессия истекла, переавторизуйтесь")
		}

		api := tg.NewClient(client)
		gifts, err = loadCatalog(ctx, api)
		if err != nil {
			return err
		}
		if withThumbnails {
			for i := range gifts {
				if gifts[i].sticker == nil {
					continue
				}
				thumb, err := downloadThumbnail(ctx, api, gifts[i].sticker)
				if err != nil {
					log.Printf("[GIFT] превью для %d пропущено: %v", gifts[i].ID, err)
					continue
				}
				gifts[i].Thumbnail = thumb
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return gifts, nil
}

// SendGift отправляет подарок получателю. Перед оплатой каталог
// перечитывается и проверяется, что подарок существует и не распродан —
// иначе возвращается GiftUnavailableError без каких-либо трат.
func SendGift(store *storage.Store, f *Factory, recipient string, giftID int64, message string) error {
	rec := store.Load()
	if !rec.HasSession() {
		return ErrNoSession
	}

	client, err := f.Build(f.sessionStorage(fieldSession), 0, "")
	if err != nil {
		return err
	}

	ctx := context.Background()
	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return err
		}
		if !status.Authorized {
			return errors.New("сессия истекла, переавторизуйтесь")
		}

		api := tg.NewClient(client)

		// Баланс запрашивается только для диагностики в логах,
		// отправку он не блокирует.
		if balance, err := starsBalance(ctx, api); err != nil {
			log.Printf("[GIFT] не удалось получить баланс: %v", err)
		} else {
			log.Printf("[GIFT] баланс перед отправкой: %d звёзд", balance)
		}

		peer, err := resolveRecipient(ctx, api, recipient)
		if err != nil {
			return err
		}

		gifts, err := loadCatalog(ctx, api)
		if err != nil {
			return fmt.Errorf("не удалось получить каталог подарков: %w", err)
		}
		if err := checkGiftAvailable(gifts, giftID); err != nil {
			return err
		}

		if message == "" {
			message = defaultGiftMessage
		}
		invoice := &tg.InputInvoiceStarGift{Peer: peer, GiftID: giftID}
		invoice.SetMessage(tg.TextWithEntities{Text: message})

		form, err := api.PaymentsGetPaymentForm(ctx, &tg.PaymentsGetPaymentFormRequest{
			Invoice: invoice,
		})
		if err != nil {
			return fmt.Errorf("не удалось получить форму оплаты: %w", err)
		}
		formID, err := paymentFormID(form)
		if err != nil {
			return err
		}

		if _, err := api.PaymentsSendStarsForm(ctx, &tg.PaymentsSendStarsFormRequest{
			FormID:  formID,
			Invoice: invoice,
		}); err != nil {
			return fmt.Errorf("оплата не прошла: %w", err)
		}
		log.Printf("[GIFT] подарок %d отправлен получателю %s", giftID, recipient)
		return nil
	})
}

// loadCatalog запрашивает каталог и оставляет только обычные подарки
// (уникальные экземпляры в продаже не участвуют).
func loadCatalog(ctx context.Context, api *tg.Client) ([]Gift, error) {
	res, err := api.PaymentsGetStarGifts(ctx, 0)
	if err != nil {
		return nil, err
	}
	catalog, ok := res.(*tg.PaymentsStarGifts)
	if !ok {
		return nil, fmt.Errorf("неожиданный тип каталога: %T", res)
	}

	var gifts []Gift
	for _, gc := range catalog.Gifts {
		g, ok := gc.(*tg.StarGift)
		if !ok {
			continue
		}
		item := Gift{
			ID:           g.ID,
			Stars:        g.Stars,
			ConvertStars: g.ConvertStars,
			Limited:      g.Limited,
			SoldOut:      g.SoldOut,
		}
		if title, ok := g.GetTitle(); ok {
			item.Title = title
		}
		if remains, ok := g.GetAvailabilityRemains(); ok {
			item.Remains = remains
		}
		if total, ok := g.GetAvailabilityTotal(); ok {
			item.Total = total
		}
		if doc, ok := g.Sticker.(*tg.Document); ok {
			item.sticker = doc
		}
		gifts = append(gifts, item)
	}
	return gifts, nil
}

// checkGiftAvailable решает, можно ли оплачивать подарок: отсутствующий
// в каталоге или распроданный обрывает отправку GiftUnavailableError
// со списком альтернатив, форма оплаты при этом не запрашивается.
func checkGiftAvailable(gifts []Gift, giftID int64) error {
	gift := findGift(gifts, giftID)
	if gift == nil || gift.SoldOut {
		return &GiftUnavailableError{GiftID: giftID, Alternatives: availableGifts(gifts, 5)}
	}
	return nil
}

// findGift ищет подарок по ID.
func findGift(gifts []Gift, id int64) *Gift {
	for i := range gifts {
		if gifts[i].ID == id {
			return &gifts[i]
		}
	}
	return nil
}

// availableGifts возвращает не более limit нераспроданных подарков.
func availableGifts(gifts []Gift, limit int) []Gift {
	var out []Gift
	for _, g := range gifts {
		if g.SoldOut {
			continue
		}
		out = append(out, g)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// resolveRecipient превращает идентификатор получателя в адрес для счёта.
// Числовой ID разрешается напрямую (работает для пиров, которых сессия уже
// встречала), иначе значение трактуется как username.
func resolveRecipient(ctx context.Context, api *tg.Client, recipient string) (tg.InputPeerClass, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return nil, errors.New("не указан получатель")
	}

	if id, err := strconv.ParseInt(recipient, 10, 64); err == nil {
		users, err := api.UsersGetUsers(ctx, []tg.InputUserClass{&tg.InputUser{UserID: id}})
		if err != nil {
			return nil, fmt.Errorf("не удалось найти получателя %d: %w", id, err)
		}
		for _, uc := range users {
			if u, ok := uc.(*tg.User); ok && u.ID == id {
				return &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash}, nil
			}
		}
		return nil, fmt.Errorf("получатель %d не найден", id)
	}

	username := strings.TrimPrefix(recipient, "@")
	res, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		return nil, fmt.Errorf("не удалось найти получателя @%s: %w", username, err)
	}
	for _, uc := range res.Users {
		if u, ok := uc.(*tg.User); ok && strings.EqualFold(u.Username, username) {
			return &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash}, nil
		}
	}
	return nil, fmt.Errorf("получатель @%s не найден", username)
}

// paymentFormID достаёт идентификатор из любой разновидности формы оплаты.
func paymentFormID(form tg.PaymentsPaymentFormClass) (int64, error) {
	switch f := form.(type) {
	case *tg.PaymentsPaymentForm:
		return f.FormID, nil
	case *tg.PaymentsPaymentFormStars:
		return f.FormID, nil
	case *tg.PaymentsPaymentFormStarGift:
		return f.FormID, nil
	default:
		return 0, fmt.Errorf("неожиданный тип формы оплаты: %T", form)
	}
}

// downloadThumbnail скачивает превью стикера подарка и кодирует его в base64.
func downloadThumbnail(ctx context.Context, api *tg.Client, doc *tg.Document) (string, error) {
	thumbType := ""
	for _, t := range doc.Thumbs {
		if ps, ok := t.(*tg.PhotoSize); ok {
			thumbType = ps.Type
			break
		}
	}
	if thumbType == "" {
		return "", errors.New("у стикера нет превью")
	}

	loc := &tg.InputDocumentFileLocation{
		ID:            doc.ID,
		AccessHash:    doc.AccessHash,
		FileReference: doc.FileReference,
		ThumbSize:     thumbType,
	}
	var buf bytes.Buffer
	if _, err := downloader.NewDownloader().Download(api, loc).Stream(ctx, &buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
