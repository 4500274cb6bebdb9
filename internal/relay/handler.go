package relay

import (
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"gift_relay/internal/httputil"
	"gift_relay/pkg/storage"
	telegram "gift_relay/pkg/telegram"

	"github.com/gin-gonic/gin"
)

// Handler обслуживает все HTTP-операции релея. Каждый запрос — отдельная
// блокирующая единица работы: клиент Telegram открывается, используется и
// закрывается внутри одного вызова.
type Handler struct {
	Store     *storage.Store
	Factory   *telegram.Factory
	startedAt time.Time
}

func NewHandler(store *storage.Store, factory *telegram.Factory) *Handler {
	return &Handler{Store: store, Factory: factory, startedAt: time.Now()}
}

// Health — проверка живости без секрета: аптайм и наличие сессии.
func (h *Handler) Health(c *gin.Context) {
	rec := h.Store.Load()
	c.JSON(200, gin.H{
		"status":         "ok",
		"service":        "gift-relay",
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"has_session":    rec.HasSession(),
	})
}

// Status возвращает сохранённые учётные данные и, если сессия есть,
// проверяет её и дополняет ответ данными аккаунта и балансом.
func (h *Handler) Status(c *gin.Context) {
	rec := h.Store.Load()
	resp := gin.H{
		"connected": false,
		"api_id":    rec.ApiID,
		"api_hash":  rec.ApiHash,
		"phone":     rec.Phone,
	}
	if !rec.HasSession() || !rec.HasCredentials() {
		c.JSON(200, resp)
		return
	}

	status, err := telegram.CheckStatus(h.Store, h.Factory)
	if err != nil {
		// Неудачная проверка не делает запрос ошибочным: аккаунт просто
		// считается неподключённым, как и в случае протухшей сессии.
		log.Printf("[STATUS] ошибка проверки сессии: %v", err)
		c.JSON(200, resp)
		return
	}
	resp["connected"] = status.Connected
	if status.Connected && status.Identity != nil {
		resp["account_name"] = status.Identity.Name
		resp["account_id"] = status.Identity.ID
		resp["username"] = status.Identity.Username
	}
	if status.Balance != nil {
		resp["stars_balance"] = *status.Balance
	}
	c.JSON(200, resp)
}

// SendCode запускает вход по коду: сохраняет учётные данные и просит
// Telegram отправить код подтверждения.
func (h *Handler) SendCode(c *gin.Context) {
	var input struct {
		ApiID   string `json:"api_id"`
		ApiHash string `json:"api_hash"`
		Phone   string `json:"phone"`
		Resend  bool   `json:"resend"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		httputil.RespondError(c, 400, "Invalid data")
		return
	}

	input.ApiID = strings.TrimSpace(input.ApiID)
	input.ApiHash = strings.TrimSpace(input.ApiHash)
	input.Phone = strings.TrimSpace(input.Phone)
	if input.ApiID == "" || input.ApiHash == "" || input.Phone == "" {
		httputil.RespondError(c, 400, "Заполните API ID, API Hash и телефон")
		return
	}
	apiID, err := strconv.Atoi(input.ApiID)
	if err != nil {
		httputil.RespondError(c, 400, "API ID должен быть числом")
		return
	}

	sent, err := telegram.RequestCode(h.Store, h.Factory, apiID, input.ApiHash, input.Phone, input.Resend)
	if err != nil {
		log.Printf("[AUTH] ошибка запроса кода: %v", err)
		httputil.RespondError(c, 400, "Ошибка: "+err.Error())
		return
	}
	c.JSON(200, gin.H{
		"success": true,
		"message": "Код отправлен в Telegram",
		"channel": sent.Channel,
		"resent":  sent.Resent,
	})
}

// SignIn подтверждает вход по коду и/или паролю второго фактора.
func (h *Handler) SignIn(c *gin.Context) {
	var input struct {
		Code     string `json:"code"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		httputil.RespondError(c, 400, "Invalid data")
		return
	}

	identity, needPassword, err := telegram.Confirm(
		h.Store, h.Factory,
		strings.TrimSpace(input.Code), strings.TrimSpace(input.Password),
	)
	switch {
	case errors.Is(err, telegram.ErrFlowNotStarted):
		httputil.RespondError(c, 400, "Сначала отправьте код")
		return
	case errors.Is(err, telegram.ErrNoInput):
		httputil.RespondError(c, 400, "Введите код или пароль")
		return
	case err != nil:
		log.Printf("[AUTH] ошибка подтверждения: %v", err)
		httputil.RespondError(c, 400, err.Error())
		return
	}
	if needPassword {
		c.JSON(200, gin.H{"need_2fa": true, "message": "Требуется пароль 2FA"})
		return
	}
	c.JSON(200, gin.H{
		"success":      true,
		"account_name": identity.Name,
		"account_id":   identity.ID,
		"username":     identity.Username,
	})
}

// QRStart выпускает токен входа по QR.
func (h *Handler) QRStart(c *gin.Context) {
	var input struct {
		ApiID   string `json:"api_id"`
		ApiHash string `json:"api_hash"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		httputil.RespondError(c, 400, "Invalid data")
		return
	}
	apiID, err := strconv.Atoi(strings.TrimSpace(input.ApiID))
	if err != nil || strings.TrimSpace(input.ApiHash) == "" {
		httputil.RespondError(c, 400, "Заполните API ID и API Hash")
		return
	}

	token, err := telegram.StartQR(h.Store, h.Factory, apiID, strings.TrimSpace(input.ApiHash))
	if err != nil {
		log.Printf("[QR] ошибка запуска: %v", err)
		httputil.RespondError(c, 400, err.Error())
		return
	}
	c.JSON(200, gin.H{"success": true, "qr": token})
}

// QRPoll опрашивает состояние QR-входа.
func (h *Handler) QRPoll(c *gin.Context) {
	result, err := telegram.PollQR(h.Store, h.Factory)
	switch {
	case errors.Is(err, telegram.ErrQRNotStarted):
		httputil.RespondError(c, 400, "Сначала запустите вход по QR")
		return
	case err != nil:
		log.Printf("[QR] ошибка опроса: %v", err)
		httputil.RespondError(c, 400, err.Error())
		return
	}

	resp := gin.H{"status": result.Status}
	switch result.Status {
	case telegram.QRStatusPending:
		resp["qr"] = result.Token
	case telegram.QRStatusWaitingPassword:
		resp["message"] = "Требуется пароль 2FA"
	case telegram.QRStatusSuccess:
		resp["account_name"] = result.Identity.Name
		resp["account_id"] = result.Identity.ID
		resp["username"] = result.Identity.Username
	}
	c.JSON(200, resp)
}

// QRPassword завершает QR-вход паролем второго фактора.
func (h *Handler) QRPassword(c *gin.Context) {
	var input struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || strings.TrimSpace(input.Password) == "" {
		httputil.RespondError(c, 400, "Введите пароль")
		return
	}

	identity, err := telegram.ConfirmQRPassword(h.Store, h.Factory, strings.TrimSpace(input.Password))
	switch {
	case errors.Is(err, telegram.ErrQRNotStarted):
		httputil.RespondError(c, 400, "Сначала запустите вход по QR")
		return
	case errors.Is(err, telegram.ErrPasswordInvalid):
		// Состояние входа сохранено, пароль можно ввести ещё раз.
		httputil.RespondError(c, 400, err.Error())
		return
	case err != nil:
		log.Printf("[QR] ошибка подтверждения пароля: %v", err)
		httputil.RespondError(c, 400, err.Error())
		return
	}
	c.JSON(200, gin.H{
		"success":      true,
		"account_name": identity.Name,
		"account_id":   identity.ID,
		"username":     identity.Username,
	})
}

// ImportSession подключает аккаунт по готовой строке сессии.
func (h *Handler) ImportSession(c *gin.Context) {
	var input struct {
		Session string `json:"session"`
		ApiID   string `json:"api_id"`
		ApiHash string `json:"api_hash"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		httputil.RespondError(c, 400, "Invalid data")
		return
	}
	apiID, err := strconv.Atoi(strings.TrimSpace(input.ApiID))
	if err != nil || strings.TrimSpace(input.ApiHash) == "" || strings.TrimSpace(input.Session) == "" {
		httputil.RespondError(c, 400, "Заполните строку сессии, API ID и API Hash")
		return
	}

	identity, err := telegram.ImportSession(
		h.Store, h.Factory,
		strings.TrimSpace(input.Session), apiID, strings.TrimSpace(input.ApiHash),
	)
	if err != nil {
		log.Printf("[IMPORT] ошибка импорта: %v", err)
		httputil.RespondError(c, 400, err.Error())
		return
	}
	c.JSON(200, gin.H{
		"success":      true,
		"account_name": identity.Name,
		"account_id":   identity.ID,
		"username":     identity.Username,
	})
}

// Disconnect удаляет сессию и все промежуточные артефакты входа.
func (h *Handler) Disconnect(c *gin.Context) {
	rec := h.Store.Load()
	rec.ClearAuthState()
	h.Store.Save(rec)
	c.JSON(200, gin.H{"success": true})
}

// Gifts возвращает каталог подарков, опционально с превью.
func (h *Handler) Gifts(c *gin.Context) {
	var input struct {
		WithThumbnails bool `json:"with_thumbnails"`
	}
	// Тело может отсутствовать — тогда параметры по умолчанию.
	_ = c.ShouldBindJSON(&input)

	gifts, err := telegram.ListGifts(h.Store, h.Factory, input.WithThumbnails)
	switch {
	case errors.Is(err, telegram.ErrNoSession):
		httputil.RespondError(c, 400, "Сессия не настроена")
		return
	case err != nil:
		log.Printf("[GIFT] ошибка каталога: %v", err)
		httputil.RespondError(c, 400, err.Error())
		return
	}
	c.JSON(200, gin.H{"gifts": gifts, "count": len(gifts)})
}

// SendGift отправляет подарок. user_id принимает и число, и username.
func (h *Handler) SendGift(c *gin.Context) {
	var input struct {
		UserID  json.RawMessage `json:"user_id"`
		GiftID  json.RawMessage `json:"gift_id"`
		Message string          `json:"message"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		httputil.RespondError(c, 400, "Invalid data")
		return
	}

	recipient := rawString(input.UserID)
	giftRaw := rawString(input.GiftID)
	if recipient == "" || giftRaw == "" {
		httputil.RespondError(c, 400, "user_id and gift_id required")
		return
	}
	giftID, err := strconv.ParseInt(giftRaw, 10, 64)
	if err != nil {
		httputil.RespondError(c, 400, "gift_id должен быть числом")
		return
	}

	err = telegram.SendGift(h.Store, h.Factory, recipient, giftID, strings.TrimSpace(input.Message))
	var unavailable *telegram.GiftUnavailableError
	switch {
	case errors.Is(err, telegram.ErrNoSession):
		c.AbortWithStatusJSON(400, gin.H{"ok": false, "error": "Сессия не настроена"})
		return
	case errors.As(err, &unavailable):
		httputil.RespondErrorDetails(c, 400, unavailable.Error(), gin.H{
			"ok":           false,
			"alternatives": unavailable.Alternatives,
		})
		return
	case err != nil:
		log.Printf("[GIFT] ошибка отправки user=%s gift=%d: %v", recipient, giftID, err)
		c.AbortWithStatusJSON(400, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"ok": true})
}

// rawString приводит JSON-значение (число или строку) к строке.
func rawString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if strings.HasPrefix(s, `"`) {
		var out string
		if err := json.Unmarshal(raw, &out); err != nil {
			return ""
		}
		return strings.TrimSpace(out)
	}
	return s
}
