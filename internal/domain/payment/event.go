// Package payment описывает нормализованные события платёжного провайдера.
// Набор типов закрыт: новый вид события требует правки Kind и обработчика.
package payment

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindSucceeded  Kind = "payment_succeeded"
	KindFailed     Kind = "payment_failed"
	KindProcessing Kind = "payment_processing"
	KindRefunded   Kind = "refunded"
	KindIgnored    Kind = "ignored"
)

// Envelope общие поля любого проверенного события.
type Envelope struct {
	Provider  string
	EventID   string
	Type      string
	CreatedAt time.Time
}

// Event реализуют только типы этого пакета.
type Event interface {
	Meta() Envelope
	Kind() Kind
	sealed()
}

type TargetKind string

const (
	TargetOffer    TargetKind = "offer"
	TargetTicket   TargetKind = "ticket"
	TargetContract TargetKind = "contract"
)

// Target объект платформы, к которому привязан платёж (из metadata платежа).
type Target struct {
	Kind TargetKind
	ID   uuid.UUID
}

func (t Target) IsZero() bool {
	return t.ID == uuid.Nil
}

type Succeeded struct {
	Envelope
	PaymentRef string
	Amount     int64
	Currency   string
	Target     Target
}

type Failed struct {
	Envelope
	PaymentRef string
	Amount     int64
	Currency   string
	Reason     string
	Target     Target
}

type Processing struct {
	Envelope
	PaymentRef string
	Amount     int64
	Currency   string
	Target     Target
}

type Refunded struct {
	Envelope
	PaymentRef string
	Amount     int64
}

// Ignored событие прошло проверку подписи, но его тип нам не интересен.
type Ignored struct {
	Envelope
}

func (e Envelope) Meta() Envelope { return e }

func (Succeeded) Kind() Kind  { return KindSucceeded }
func (Failed) Kind() Kind     { return KindFailed }
func (Processing) Kind() Kind { return KindProcessing }
func (Refunded) Kind() Kind   { return KindRefunded }
func (Ignored) Kind() Kind    { return KindIgnored }

func (Succeeded) sealed()  {}
func (Failed) sealed()     {}
func (Processing) sealed() {}
func (Refunded) sealed()   {}
func (Ignored) sealed()    {}
