package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gift_relay/models"
)

// BackupClient отправляет запись на удалённый бэкап-эндпоинт и забирает её
// оттуда. Протокол — один POST с JSON: {relay_secret, action: save|get, record}.
type BackupClient struct {
	url    string
	secret string
	client *http.Client
}

// NewBackupClient возвращает клиент бэкапа или nil, если URL либо секрет
// не заданы — в этом случае бэкап считается выключенным и все операции
// с ним молча пропускаются.
func NewBackupClient(url, secret string) *BackupClient {
	if url == "" || secret == "" {
		return nil
	}
	return &BackupClient{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type backupRequest struct {
	RelaySecret string         `json:"relay_secret"`
	Action      string         `json:"action"`
	Record      *models.Record `json:"record,omitempty"`
}

type backupResponse struct {
	Record *models.Record `json:"record"`
}

// Push сохраняет полную запись в бэкапе.
func (b *BackupClient) Push(rec models.Record) error {
	_, err := b.call(backupRequest{RelaySecret: b.secret, Action: "save", Record: &rec})
	return err
}

// Pull возвращает последнюю сохранённую запись. Второй результат —
// признак того, что бэкап вообще что-то вернул.
func (b *BackupClient) Pull() (models.Record, bool, error) {
	resp, err := b.call(backupRequest{RelaySecret: b.secret, Action: "get"})
	if err != nil {
		return models.Record{}, false, err
	}
	if resp.Record == nil {
		return models.Record{}, false, nil
	}
	return *resp.Record, true, nil
}

func (b *BackupClient) call(req backupRequest) (backupResponse, error) {
	var out backupResponse

	payload, err := json.Marshal(req)
	if err != nil {
		return out, err
	}
	httpResp, err := b.client.Post(b.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return out, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("бэкап ответил статусом %d", httpResp.StatusCode)
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("некорректный ответ бэкапа: %w", err)
	}
	return out, nil
}
