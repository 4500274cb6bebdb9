package models

// Record — единственная запись сервиса: учётные данные приложения,
// постоянная сессия и промежуточные артефакты незавершённых входов.
// Сервис обслуживает ровно один аккаунт, поэтому запись не имеет ключа.
// Для мультиаккаунтного расширения хранение пришлось бы ключевать по аккаунту.
type Record struct {
	ApiID   int    `json:"api_id,omitempty"`
	ApiHash string `json:"api_hash,omitempty"`
	Phone   string `json:"phone,omitempty"`

	// Session — главное поле записи: непустое значение означает,
	// что аккаунт подключён и операции можно выполнять без повторного входа.
	Session string `json:"session,omitempty"`

	// Промежуточное состояние входа по коду. Живёт только между
	// отправкой кода и подтверждением, затем очищается.
	PhoneCodeHash string `json:"phone_code_hash,omitempty"`
	TempSession   string `json:"temp_session,omitempty"`

	// Промежуточное состояние входа по QR-токену.
	QRTempSession string `json:"qr_temp_session,omitempty"`
}

// HasCredentials сообщает, заданы ли api_id и api_hash —
// без них невозможно открыть ни одно соединение.
func (r *Record) HasCredentials() bool {
	return r.ApiID != 0 && r.ApiHash != ""
}

// HasSession сообщает, есть ли постоянная сессия.
func (r *Record) HasSession() bool {
	return r.Session != ""
}

// IsEmpty сообщает, что запись не содержит никаких данных.
func (r *Record) IsEmpty() bool {
	return r.ApiID == 0 && r.ApiHash == "" && r.Phone == "" &&
		r.Session == "" && r.PhoneCodeHash == "" && r.TempSession == "" && r.QRTempSession == ""
}

// ClearAuthState удаляет сессию и все промежуточные артефакты входа.
// Используется при явном отключении аккаунта.
func (r *Record) ClearAuthState() {
	r.Session = ""
	r.ClearTransient()
}

// ClearTransient удаляет только промежуточные артефакты,
// не трогая постоянную сессию.
func (r *Record) ClearTransient() {
	r.PhoneCodeHash = ""
	r.TempSession = ""
	r.QRTempSession = ""
}
