package reminder

import (
	"fmt"
	"time"
)

func hours(d time.Duration) string {
	h := int(d.Hours())
	if h == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", h)
}

func firstReminderText(item string, elapsed time.Duration) string {
	return fmt.Sprintf("⏰ You have had **%s** for %s. Return it when you are done, or let us know you still need it.",
		item, hours(elapsed))
}

func secondReminderText(item string, elapsed time.Duration) string {
	return fmt.Sprintf("⏰ Reminder: you still have **%s** (%s now). Please bring it back to the bank.",
		item, hours(elapsed))
}

func escalationText(holder, item string, elapsed time.Duration) string {
	return fmt.Sprintf("🚨 **%s** has had **%s** for %s. Please return it!", holder, item, hours(elapsed))
}
