package realtime

import (
	"time"

	"github.com/Krimson/vitals-monitory/pkg/models"
)

// State — состояние канала реального времени
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// Типы сообщений протокола
const (
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypeSubscribed  = "subscribed"
	MessageTypeUpdate      = "update"
	MessageTypeError       = "error"
)

// ClientMessage — сообщение от клиента серверу
type ClientMessage struct {
	Type      string `json:"type"`
	PatientID string `json:"patient_id"`
	ClientID  string `json:"client_id,omitempty"`
}

// ServerMessage — сообщение от сервера клиенту.
// Частичные обновления допустимы: в Data присутствуют только
// изменившиеся каналы.
type ServerMessage struct {
	Type      string      `json:"type"`
	PatientID string      `json:"patient_id,omitempty"`
	Data      *UpdateData `json:"data,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

// UpdateData — показания в сообщении update
type UpdateData struct {
	HR   *float64 `json:"hr,omitempty"`
	Temp *float64 `json:"temp,omitempty"`
	SpO2 *float64 `json:"spo2,omitempty"`
	RR   *float64 `json:"rr,omitempty"`
	BP   *string  `json:"bp,omitempty"`
	Fall *bool    `json:"fall,omitempty"`
}

// Update — доставленное подписчику обновление
type Update struct {
	PatientID  string
	Data       UpdateData
	ReceivedAt time.Time
}

// Sample переводит обновление в сэмпл (для локального дозаписывания)
func (u *Update) Sample(thresholdsID, source string) models.VitalSample {
	return models.VitalSample{
		Timestamp:    u.ReceivedAt.Unix(),
		HR:           u.Data.HR,
		Temp:         u.Data.Temp,
		SpO2:         u.Data.SpO2,
		RR:           u.Data.RR,
		Fall:         u.Data.Fall,
		Source:       source,
		ThresholdsID: thresholdsID,
	}
}
