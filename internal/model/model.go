// Package model содержит доменные сущности сервиса бронирования ZapTasks.
package model

import "time"

// Identity описывает пользователя, подтверждённого провайдером идентификации.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Customer описывает платёжного клиента во внешней платёжной платформе.
type Customer struct {
	ID        string
	Email     string
	Name      string
	AppUserID string
}

// CustomerLink связывает пользователя приложения с платёжным клиентом.
type CustomerLink struct {
	UserID     string
	Email      string
	CustomerID string
	CreatedAt  time.Time
}

// CustomerLookup содержит результат поиска клиента по email.
type CustomerLookup struct {
	IsCustomer bool    `json:"isCustomer"`
	CustomerID *string `json:"customerId"`
}

// InvoiceType различает две части оплаты бронирования.
type InvoiceType string

const (
	InvoiceTypeDeposit   InvoiceType = "deposit"
	InvoiceTypeRemainder InvoiceType = "remainder"
)

// InvoiceStatus описывает статус счёта в платёжной платформе.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusOpen          InvoiceStatus = "open"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusVoid          InvoiceStatus = "void"
	InvoiceStatusUncollectible InvoiceStatus = "uncollectible"
)

// InvoiceLine описывает строку счёта.
type InvoiceLine struct {
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
}

// Invoice описывает счёт платёжной платформы.
type Invoice struct {
	ID              string            `json:"id"`
	CustomerID      string            `json:"customer"`
	AmountDue       int64             `json:"amount_due"`
	Currency        string            `json:"currency"`
	Status          InvoiceStatus     `json:"status"`
	HostedURL       string            `json:"hosted_invoice_url"`
	DueDate         *time.Time        `json:"due_date,omitempty"`
	CreatedAt       time.Time         `json:"created"`
	Metadata        map[string]string `json:"metadata"`
	PaymentIntentID string            `json:"payment_intent,omitempty"`
	Lines           []InvoiceLine     `json:"lines"`

	PaymentIntent *PaymentIntent `json:"-"`
}

// Type возвращает тип счёта из метаданных.
func (i *Invoice) Type() InvoiceType {
	return InvoiceType(i.Metadata[MetadataInvoiceType])
}

// InvoiceDraft содержит параметры создания счёта.
type InvoiceDraft struct {
	CustomerID   string
	DaysUntilDue int64
	Metadata     map[string]string
}

// InvoiceItem содержит параметры строки счёта.
type InvoiceItem struct {
	InvoiceID   string
	CustomerID  string
	Amount      int64
	Currency    string
	Description string
}

// CaptureMethod описывает режим списания платежа.
type CaptureMethod string

const (
	CaptureMethodAutomatic CaptureMethod = "automatic"
	CaptureMethodManual    CaptureMethod = "manual"
)

// PaymentIntent описывает попытку списания в платёжной платформе.
type PaymentIntent struct {
	ID            string            `json:"id"`
	CustomerID    string            `json:"customer,omitempty"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Status        string            `json:"status"`
	CaptureMethod CaptureMethod     `json:"capture_method"`
	ClientSecret  string            `json:"client_secret"`
	Metadata      map[string]string `json:"metadata"`
}

// Ключи метаданных, которыми помечаются счета и платежи.
const (
	MetadataAppUserID   = "appUserId"
	MetadataInvoiceType = "invoiceType"
	MetadataInvoiceID   = "invoiceId"
	MetadataPaymentType = "paymentType"
	MetadataServices    = "services"
)

// Значения MetadataPaymentType.
const (
	PaymentTypeDeposit   = "deposit"
	PaymentTypeRemaining = "remaining"
)

// PaymentEvent описывает проверенное событие платёжной платформы.
type PaymentEvent struct {
	ID        string
	Type      string
	InvoiceID string
	Status    InvoiceStatus
}

// BookingDraft описывает параметры бронирования, выбранные клиентом.
type BookingDraft struct {
	Services       []string
	Date           string
	Time           string
	Hours          int
	People         int
	Description    string
	Address        string
	BringEquipment bool
}

// BookingSplit содержит сумму бронирования и её разбиение в центах.
type BookingSplit struct {
	TotalCents     int64
	DepositCents   int64
	RemainderCents int64
}

// InvoiceRequest содержит входные данные генератора счетов.
type InvoiceRequest struct {
	Amount     float64
	CustomerID string
	Draft      BookingDraft
}

// InvoicePair описывает пару выставленных счетов бронирования.
type InvoicePair struct {
	DepositInvoiceID    string `json:"depositInvoiceId"`
	DepositInvoiceURL   string `json:"depositInvoiceUrl"`
	RemainderInvoiceID  string `json:"remainderInvoiceId"`
	RemainderInvoiceURL string `json:"remainderInvoiceUrl"`
	TotalAmount         int64  `json:"totalAmount"`
	DepositAmount       int64  `json:"depositAmount"`
	RemainingAmount     int64  `json:"remainingAmount"`
}

// Booking описывает локальную запись о бронировании с парой счетов.
type Booking struct {
	ID                 int64
	UserID             string
	CustomerID         string
	DepositInvoiceID   string
	RemainderInvoiceID string
	DepositStatus      InvoiceStatus
	RemainderStatus    InvoiceStatus
	Draft              BookingDraft
	Split              BookingSplit
	CreatedAt          time.Time
}

// StatusOf возвращает локальный статус указанного счёта бронирования.
func (b *Booking) StatusOf(invoiceID string) (InvoiceStatus, bool) {
	switch invoiceID {
	case b.DepositInvoiceID:
		return b.DepositStatus, true
	case b.RemainderInvoiceID:
		return b.RemainderStatus, true
	}
	return "", false
}

// UnpaidInvoice описывает неоплаченный счёт в формате для отображения.
type UnpaidInvoice struct {
	ID                        string        `json:"id"`
	Amount                    int64         `json:"amount"`
	DisplayAmount             string        `json:"displayAmount"`
	Currency                  string        `json:"currency"`
	Date                      string        `json:"date"`
	InvoiceType               InvoiceType   `json:"invoiceType,omitempty"`
	Services                  []string      `json:"services"`
	PaymentIntentClientSecret *string       `json:"paymentIntentClientSecret"`
	Lines                     []InvoiceLine `json:"lines"`
}

// PaymentConfirmation описывает результат сверки оплаты депозита.
type PaymentConfirmation struct {
	InvoiceID string        `json:"invoiceId"`
	Status    InvoiceStatus `json:"status"`
	Paid      bool          `json:"paid"`
}

// Task описывает задание, выполняемое исполнителем для клиента.
type Task struct {
	ID          string     `json:"id"`
	ClientID    string     `json:"client_id"`
	ProviderID  *string    `json:"provider_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	ImageURL    string     `json:"image_url"`
	Price       float64    `json:"price"`
	Location    string     `json:"location"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Review описывает оценку, оставленную участником задания.
type Review struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	ReviewerID string    `json:"reviewer_id"`
	RevieweeID string    `json:"reviewee_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Rating содержит запрос на оценку задания.
type Rating struct {
	TaskID  string
	Rating  int
	Comment string
}

// ZapperApplication описывает анкету исполнителя (Zapper).
type ZapperApplication struct {
	ID          int64
	UserID      string
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	DateOfBirth time.Time
	Address     string
	City        string
	State       string
	Zip         string
	SSNLast4    string
	Skills      []string
	CreatedAt   time.Time
}

// InvoiceDetails содержит счёт вместе с его платежом.
type InvoiceDetails struct {
	Invoice       *Invoice       `json:"invoice"`
	PaymentIntent *PaymentIntent `json:"paymentIntent"`
}

// InvoiceCheckout содержит данные для оплаты счёта на стороне клиента.
type InvoiceCheckout struct {
	Invoice      *Invoice `json:"invoice"`
	ClientSecret *string  `json:"clientSecret"`
}

// RemainderSetup описывает подготовленный к списанию платёж остатка.
type RemainderSetup struct {
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
}

// Quote описывает расчёт стоимости бронирования.
type Quote struct {
	Amount          float64 `json:"amount"`
	TotalAmount     int64   `json:"totalAmount"`
	DepositAmount   int64   `json:"depositAmount"`
	RemainingAmount int64   `json:"remainingAmount"`
}
