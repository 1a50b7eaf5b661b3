package provider

import (
	"context"
	"fmt"
	"time"
)

var dayNames = [...]string{"Pazar", "Pazartesi", "Salı", "Çarşamba", "Perşembe", "Cuma", "Cumartesi"}

var monthNames = [...]string{"Ocak", "Şubat", "Mart", "Nisan", "Mayıs", "Haziran",
	"Temmuz", "Ağustos", "Eylül", "Ekim", "Kasım", "Aralık"}

// Clock answers time and date questions from the local clock.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

// Fetch implements Provider.
func (c Clock) Fetch(_ context.Context, _ string) (string, bool) {
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	if c.Location != nil {
		now = now.In(c.Location)
	}
	return FormatTime(now), true
}

// FormatTime renders t as the context block handed to the model.
func FormatTime(t time.Time) string {
	return fmt.Sprintf("GUNCEL ZAMAN BILGISI:\nTarih: %d %s %d, %s\nSaat: %s",
		t.Day(), monthNames[t.Month()-1], t.Year(), dayNames[t.Weekday()], t.Format("15:04"))
}
