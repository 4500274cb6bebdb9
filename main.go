package main

import (
	"log"
	"os"

	"gift_relay/internal/keepalive"
	"gift_relay/internal/middleware"
	"gift_relay/internal/relay"
	"gift_relay/pkg/storage"
	telegram "gift_relay/pkg/telegram"

	"github.com/gin-gonic/gin"
)

func main() {
	secret := getEnv("RELAY_SECRET", "change-me-in-production")

	// Инициализация хранилища: локальный файл плюс удалённый бэкап,
	// чтобы сессия переживала очистку диска хостингом.
	backup := storage.NewBackupClient(os.Getenv("BACKUP_URL"), secret)
	store := storage.NewStore(getEnv("DATA_DIR", "data"), backup)

	proxy, err := telegram.ParseProxy(os.Getenv("SOCKS5_PROXY"))
	if err != nil {
		log.Fatalf("Invalid SOCKS5_PROXY: %v", err)
	}
	factory := telegram.NewFactory(store, proxy)

	// Настройка роутера
	r := setupRouter(store, factory, secret)

	// Самопинг против усыпления процесса хостингом
	keepalive.Start(os.Getenv("SELF_URL"))

	// Запуск сервера
	port := getPort()
	log.Printf("Starting server on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// Функция получения порта из переменных окружения
func getPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return "8080"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Настройка маршрутов
func setupRouter(store *storage.Store, factory *telegram.Factory, secret string) *gin.Engine {
	r := gin.Default()

	h := relay.NewHandler(store, factory)

	// Health check без секрета — по нему же работает самопинг
	r.GET("/health", h.Health)

	// Все операции релея — за общим секретом
	secured := r.Group("", middleware.SecretRequired(secret))
	relay.SetupRoutes(secured, h)

	// Логирование зарегистрированных роутов
	log.Printf("[ROUTER] Routes initialized:")
	log.Printf("[ROUTER] GET  /health")
	log.Printf("[ROUTER] POST /status /send-code /sign-in")
	log.Printf("[ROUTER] POST /qr/start /qr/poll /qr/password")
	log.Printf("[ROUTER] POST /import-session /disconnect /gifts /send-gift")

	return r
}
