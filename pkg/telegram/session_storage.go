package telegram

import (
	"context"
	"encoding/base64"
	"sync"

	"gift_relay/models"
	"gift_relay/pkg/storage"

	"github.com/gotd/td/session"
)

// sessionField указывает, в каком поле записи живёт сессия клиента.
type sessionField int

const (
	fieldSession sessionField = iota
	fieldTempSession
	fieldQRTempSession
)

// recordSession хранит сессию gotd в одном из полей записи.
// Каждое обновление со стороны клиента сразу попадает в хранилище,
// поэтому промежуточное состояние входа переживает завершение запроса.
type recordSession struct {
	store *storage.Store
	field sessionField
}

func (s *recordSession) LoadSession(ctx context.Context) ([]byte, error) {
	rec := s.store.Load()
	encoded := s.read(&rec)
	if encoded == "" {
		return nil, session.ErrNotFound
	}
	return decodeSession(encoded)
}

func (s *recordSession) StoreSession(ctx context.Context, data []byte) error {
	rec := s.store.Load()
	s.write(&rec, encodeSession(data))
	s.store.Save(rec)
	return nil
}

func (s *recordSession) read(rec *models.Record) string {
	switch s.field {
	case fieldTempSession:
		return rec.TempSession
	case fieldQRTempSession:
		return rec.QRTempSession
	default:
		return rec.Session
	}
}

func (s *recordSession) write(rec *models.Record, value string) {
	switch s.field {
	case fieldTempSession:
		rec.TempSession = value
	case fieldQRTempSession:
		rec.QRTempSession = value
	default:
		rec.Session = value
	}
}

// memorySession держит сессию только в памяти. Используется при импорте
// и при запросе нового кода, когда до успешного ответа ничего нельзя
// записывать в хранилище.
type memorySession struct {
	mu   sync.Mutex
	data []byte
}

func (m *memorySession) LoadSession(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.data) == 0 {
		return nil, session.ErrNotFound
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

func (m *memorySession) StoreSession(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make([]byte, len(data))
	copy(m.data, data)
	return nil
}

func (m *memorySession) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// Сессия в записи хранится как base64 — получается переносимая строка,
// которую можно выгрузить и импортировать на другом экземпляре сервиса.
func encodeSession(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func decodeSession(value string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(value)
}
