package storage

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gift_relay/models"
)

// RecordFileName — имя локального файла с записью.
// Сервис однопользовательский, поэтому имя фиксировано; для нескольких
// аккаунтов файл пришлось бы ключевать по идентификатору аккаунта.
const RecordFileName = "session.json"

// Store хранит запись в локальном файле и дублирует её в удалённый бэкап.
// Локальный диск хостинга может очищаться между перезапусками, поэтому
// при пустом локальном файле запись один раз подтягивается из бэкапа.
type Store struct {
	mu     sync.Mutex
	path   string
	backup *BackupClient // nil — бэкап не настроен

	// pullTried не даёт ходить в бэкап на каждом чтении, когда бэкап
	// недоступен или действительно пуст. Сбрасывается только перезапуском.
	pullTried bool
}

// NewStore создаёт хранилище в каталоге dir. backup может быть nil.
func NewStore(dir string, backup *BackupClient) *Store {
	return &Store{path: filepath.Join(dir, RecordFileName), backup: backup}
}

// Load читает запись. Никогда не возвращает ошибку: любая проблема
// чтения или разбора деградирует до пустой записи.
//
// Частично заполненная локальная запись (есть поля, но нет сессии)
// возвращается как есть и не вытесняется бэкапом — иначе терялось бы
// состояние незавершённого входа.
func (s *Store) Load() models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() models.Record {
	rec := s.readLocal()
	if !rec.IsEmpty() {
		return rec
	}
	if s.backup == nil || s.pullTried {
		return rec
	}
	s.pullTried = true

	pulled, ok, err := s.backup.Pull()
	if err != nil {
		log.Printf("[STORAGE] бэкап недоступен: %v", err)
		return rec
	}
	if !ok || pulled.IsEmpty() {
		return rec
	}
	log.Printf("[STORAGE] запись восстановлена из бэкапа")
	// Зеркалируем в локальный файл, чтобы следующие чтения шли с диска.
	s.writeLocal(pulled)
	return pulled
}

// Save пишет запись в локальный файл. Ошибка записи только логируется —
// надёжность обеспечивается бэкапом, а вызывающий не должен падать из-за диска.
// Если запись содержит сессию, полная копия отправляется в бэкап
// в отдельной горутине, не задерживая вызывающего.
func (s *Store) Save(rec models.Record) {
	s.mu.Lock()
	s.writeLocal(rec)
	s.mu.Unlock()

	if rec.HasSession() && s.backup != nil {
		go func() {
			if err := s.backup.Push(rec); err != nil {
				// Неудачный push просто пропускается: следующий Save
				// с сессией отправит уже актуальные данные.
				log.Printf("[BACKUP] ошибка отправки: %v", err)
			}
		}()
	}
}

func (s *Store) readLocal() models.Record {
	var rec models.Record
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[STORAGE] ошибка чтения %s: %v", s.path, err)
		}
		return rec
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		log.Printf("[STORAGE] повреждённая запись %s: %v", s.path, err)
		return models.Record{}
	}
	return rec
}

func (s *Store) writeLocal(rec models.Record) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		log.Printf("[STORAGE] ошибка создания каталога: %v", err)
		return
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		log.Printf("[STORAGE] ошибка сериализации: %v", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		log.Printf("[STORAGE] ошибка записи %s: %v", s.path, err)
	}
}
