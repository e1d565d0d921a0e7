package models

// InterpolationStatus результат запроса интерполированной ситуации
type InterpolationStatus struct {
	ChangedPosition        bool `json:"changed_position"`
	InterpolationSucceeded bool `json:"interpolation_succeeded"`
	SituationsCount        int  `json:"situations_count"`
}

// PartsStatus результат запроса parts.
// SupportKnown=false означает, что parts еще не приходили и поддержка не объявлена.
type PartsStatus struct {
	Supported    bool `json:"supported"`
	SupportKnown bool `json:"support_known"`
	PartsCount   int  `json:"parts_count"`
}

// ConnectionStatus состояние подключения к сети
type ConnectionStatus uint8

const (
	Disconnected ConnectionStatus = iota
	Connecting
	Connected
	Disconnecting
)

// String возвращает строковое представление статуса
func (s ConnectionStatus) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// ParseConnectionStatus разбирает статус из сетевого события
func ParseConnectionStatus(s string) ConnectionStatus {
	switch s {
	case "connecting":
		return Connecting
	case "connected":
		return Connected
	case "disconnecting":
		return Disconnecting
	default:
		return Disconnected
	}
}

// IsConnected true только для установленного соединения
func (s ConnectionStatus) IsConnected() bool {
	return s == Connected
}
