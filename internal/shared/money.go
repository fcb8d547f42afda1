package shared

import (
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MoneyFormatter renders minor-unit integer amounts for display. All ledger
// arithmetic stays on int64 minor units; formatting is presentation only.
type MoneyFormatter struct {
	unit    currency.Unit
	printer *message.Printer
	scale   int64
}

// NewMoneyFormatter builds a formatter for an ISO 4217 currency code.
func NewMoneyFormatter(code string) (*MoneyFormatter, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, err
	}
	scale := int64(1)
	digits, _ := currency.Cash.Rounding(unit)
	for i := 0; i < digits; i++ {
		scale *= 10
	}
	return &MoneyFormatter{
		unit:    unit,
		printer: message.NewPrinter(language.English),
		scale:   scale,
	}, nil
}

// Format renders an amount such as -123456 as "-USD 1,234.56".
func (f *MoneyFormatter) Format(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	whole := minor / f.scale
	frac := minor % f.scale
	if f.scale == 1 {
		return f.printer.Sprintf("%s%v %d", sign, f.unit, whole)
	}
	width := 0
	for s := f.scale; s > 1; s /= 10 {
		width++
	}
	return f.printer.Sprintf("%s%v %d.%0*d", sign, f.unit, whole, width, frac)
}
