package logger

import (
	"github.com/sirupsen/logrus"
)

// Log по умолчанию пишет в stderr, чтобы пакеты можно было использовать до Init (например, в тестах).
var Log = logrus.New()

// Init инициализирует структурированный логгер.
func Init(level string) {
	Log = logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)

	// Используем JSON формат для production, text для development
	Log.SetFormatter(&logrus.JSONFormatter{})
}

// SetTextFormatter устанавливает текстовый формат логов (для development).
func SetTextFormatter() {
	if Log != nil {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}

// ForEvent возвращает запись с привязкой к внешнему событию.
func ForEvent(provider, eventID string) *logrus.Entry {
	return Log.WithFields(logrus.Fields{
		"provider": provider,
		"event_id": eventID,
	})
}

// ForTicket возвращает запись с привязкой к заявке.
func ForTicket(ticketID string) *logrus.Entry {
	return Log.WithField("ticket_id", ticketID)
}
