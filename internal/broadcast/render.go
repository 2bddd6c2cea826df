package broadcast

import (
	"fmt"
	"strings"
	"time"

	"currency-rate-alerts/internal/fetcher"
	"currency-rate-alerts/internal/monitor"
)

func defaultGreeting() string {
	return "🌅 <b>Доброе утро!</b>"
}

func groupGreeting(chatTitle string) string {
	title := strings.TrimSpace(chatTitle)
	if title == "" {
		title = "группа"
	}
	return fmt.Sprintf("🌅 <b>Доброе утро, %s!</b>", title)
}

func renderRateDigest(rates []fetcher.Rate, date time.Time) string {
	builder := strings.Builder{}
	builder.WriteString("💰 <b>Курсы валют НБКР</b>\n")
	builder.WriteString(fmt.Sprintf("📅 <i>%s</i>\n\n", date.Format("02.01.2006")))

	for _, rate := range rates {
		builder.WriteString(fmt.Sprintf("%s <b>%s</b>  ➤  <code>%s</code> сом\n", monitor.CurrencyFlag(rate.Currency), rate.Currency, rate.Rate))
	}

	builder.WriteString("\n<i>📊 Источник: Национальный банк КР</i>")
	return builder.String()
}

func renderGoldDigest(prices []fetcher.GoldPrice, date time.Time) string {
	builder := strings.Builder{}
	builder.WriteString("🥇 <b>Цены золотых мерных слитков</b>\n")
	builder.WriteString(fmt.Sprintf("📅 <i>%s</i>\n\n", date.Format("02.01.2006")))
	builder.WriteString("<b>Масса (г)    Покупка (сом)    Продажа (сом)</b>\n")
	builder.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")

	for _, price := range prices {
		builder.WriteString(fmt.Sprintf("<code>%-8s %-12s %s</code>\n", price.Mass, price.BuyPrice, price.SellPrice))
	}

	builder.WriteString("\n<i>📊 Источник: Национальный банк КР</i>\n\n")
	builder.WriteString("📈 <i>Хорошего дня и удачных инвестиций!</i>")
	return builder.String()
}

// renderFallback is sent when neither digest could be built; the broadcast
// never silently no-ops.
func renderFallback(greeting string) string {
	builder := strings.Builder{}
	builder.WriteString(greeting)
	builder.WriteString("\n\n")
	builder.WriteString("К сожалению, не удалось получить актуальные финансовые данные.\n")
	builder.WriteString("Вы можете проверить курсы валют командой /exchange\n")
	builder.WriteString("А цены на золото командой /gold\n\n")
	builder.WriteString("Хорошего дня! 😊")
	return builder.String()
}
