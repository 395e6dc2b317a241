// Package billing содержит расчёт сумм и сроков оплаты бронирований.
package billing

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/zaptasks/zaptasks-api/internal/model"
)

const (
	// ServiceDateLayout задаёт формат даты услуги в запросах бронирования.
	ServiceDateLayout = "2006-01-02"

	// RemainderGraceDays задаёт срок оплаты остатка после даты услуги.
	RemainderGraceDays = 30

	// HourlyRate задаёт стоимость часа работы одного исполнителя в долларах.
	HourlyRate = 100
	// EquipmentFee задаёт надбавку за инструмент исполнителя в долларах.
	EquipmentFee = 50

	depositShare = 0.5
	dayDuration  = 24 * time.Hour
)

// ErrInvalidAmount возвращается для отсутствующей, нечисловой или неположительной суммы.
var ErrInvalidAmount = errors.New("invalid amount")

// ToCents переводит сумму в долларах в центы с округлением.
func ToCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

// Split разбивает сумму бронирования на депозит и остаток. Сумма частей всегда равна итогу.
func Split(amount float64) (model.BookingSplit, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return model.BookingSplit{}, ErrInvalidAmount
	}

	total := ToCents(amount)
	if total <= 0 {
		return model.BookingSplit{}, ErrInvalidAmount
	}

	deposit := int64(math.Round(float64(total) * depositShare))

	return model.BookingSplit{
		TotalCents:     total,
		DepositCents:   deposit,
		RemainderCents: total - deposit,
	}, nil
}

// ParseServiceDate разбирает дату услуги в формате YYYY-MM-DD.
func ParseServiceDate(s string) (time.Time, error) {
	d, err := time.Parse(ServiceDateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse service date %q: %w", s, err)
	}
	return d, nil
}

// DaysUntilDue возвращает срок оплаты остатка в днях: дата услуги плюс 30 дней, округление вверх.
// Дата услуги берётся как календарная дата в её собственной зоне, текущая дата берётся в UTC.
func DaysUntilDue(serviceDate, now time.Time) int64 {
	y, m, d := serviceDate.Date()
	service := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	today := now.UTC().Truncate(dayDuration)

	days := service.Sub(today).Hours() / 24

	return int64(math.Ceil(days + RemainderGraceDays))
}

// BookingTotal рассчитывает стоимость бронирования в долларах.
func BookingTotal(hours, people int, bringEquipment bool) float64 {
	total := float64(hours * people * HourlyRate)
	if bringEquipment {
		total += EquipmentFee
	}
	return total
}

// FormatAmount форматирует сумму в центах для отображения.
func FormatAmount(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d %s", sign, cents/100, cents%100, strings.ToUpper(currency))
}
