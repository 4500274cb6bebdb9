package keepalive

import (
	"log"
	"net/http"
	"strings"
	"time"
)

// pingInterval — период самопинга. Десяти минут достаточно, чтобы
// бесплатный хостинг не усыпил процесс за простой.
const pingInterval = 10 * time.Minute

// pingClient ограничен таймаутом: зависший запрос не должен
// остановить все последующие пинги.
var pingClient = &http.Client{Timeout: 30 * time.Second}

// pingURL строит адрес health-эндпоинта из базового URL сервиса.
func pingURL(selfURL string) string {
	return strings.TrimSuffix(selfURL, "/") + "/health"
}

// ping выполняет один самопинг. Ошибка логируется и игнорируется.
func ping(url string) {
	resp, err := pingClient.Get(url)
	if err != nil {
		log.Printf("[KEEPALIVE] ошибка пинга: %v", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("[KEEPALIVE] пинг вернул статус %d", resp.StatusCode)
	}
}

// Start запускает бесконечный цикл, который пингует собственный
// health-эндпоинт сервиса. Работает пока активен сервер.
func Start(selfURL string) {
	if selfURL == "" {
		log.Printf("[KEEPALIVE] SELF_URL не задан, самопинг выключен")
		return
	}
	url := pingURL(selfURL)
	go func() {
		for {
			time.Sleep(pingInterval)
			ping(url)
		}
	}()
}
