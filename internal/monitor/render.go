package monitor

import (
	"fmt"
	"strings"
	"time"
)

var currencyFlags = map[string]string{
	"USD": "🇺🇸",
	"EUR": "🇪🇺",
	"RUB": "🇷🇺",
	"KZT": "🇰🇿",
	"CNY": "🇨🇳",
	"TRY": "🇹🇷",
	"KGS": "🇰🇬",
}

// CurrencyFlag returns the flag emoji for a currency code.
func CurrencyFlag(currency string) string {
	if flag, ok := currencyFlags[currency]; ok {
		return flag
	}
	return "💱"
}

// renderAlertMessage builds one combined HTML message covering every
// triggered currency for a user.
func renderAlertMessage(triggers []Trigger) string {
	builder := strings.Builder{}
	builder.WriteString("🚨 <b>Алерт: Значительное изменение курса!</b>\n\n")

	for _, trigger := range triggers {
		direction := "📈"
		movement := "вырос"
		if trigger.NewRate.LessThan(trigger.OldRate) {
			direction = "📉"
			movement = "упал"
		}

		builder.WriteString(fmt.Sprintf("%s %s <b>%s</b>\n", direction, CurrencyFlag(trigger.Alert.Currency), trigger.Alert.Currency))
		builder.WriteString(fmt.Sprintf("├ Было: <code>%s</code> сом\n", trigger.OldRate.StringFixed(4)))
		builder.WriteString(fmt.Sprintf("├ Стало: <code>%s</code> сом\n", trigger.NewRate.StringFixed(4)))
		builder.WriteString(fmt.Sprintf("└ Изменение: <b>%s%%</b> (%s)\n\n", trigger.ChangePct.StringFixed(2), movement))
	}

	builder.WriteString(fmt.Sprintf("⏰ <i>%s</i>\n", time.Now().Format("02.01.2006 15:04")))
	builder.WriteString("📊 <i>Данные: Национальный банк КР</i>\n\n")
	builder.WriteString("💡 Управление алертами: /alerts")
	return builder.String()
}
