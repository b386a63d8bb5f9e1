package audit

import (
	"fmt"
	"strings"

	"ledgerqa/internal/core"
)

// maxListedNumbers keeps the repair prompt bounded.
const maxListedNumbers = 80

// BuildRepairInstruction renders the directive sent back to the model for
// its single retry. It returns "" for a passing result.
func BuildRepairInstruction(r Result) string {
	if r.OK {
		return ""
	}
	var b strings.Builder
	b.WriteString("Ответ не прошел проверку чисел. Перепиши ответ, используя только суммы из списка разрешенных; не считай новые суммы.\n")
	fmt.Fprintf(&b, "Ошибки: %s.\n", strings.Join(r.Errors, ", "))
	fmt.Fprintf(&b, "Разрешенные суммы: %s.\n", listNumbers(r.Expected.AllowedNumbers))
	for _, req := range r.Expected.Required {
		switch {
		case req.AnyMoney:
			fmt.Fprintf(&b, "Обязательно (%s): укажи хотя бы одну сумму из разрешенных.\n", req.Name)
		case len(req.AnyOf) == 1:
			fmt.Fprintf(&b, "Обязательно (%s): укажи сумму %s.\n", req.Name, core.FormatMoney(req.AnyOf[0]))
		default:
			fmt.Fprintf(&b, "Обязательно (%s): укажи одну из сумм: %s.\n", req.Name, listNumbers(req.AnyOf))
		}
	}
	b.WriteString("Суммы пиши целыми рублями с пробелами между разрядами и знаком ₽.")
	return b.String()
}

func listNumbers(values []float64) string {
	parts := make([]string, 0, len(values))
	for i, v := range values {
		if i == maxListedNumbers {
			parts = append(parts, fmt.Sprintf("и еще %d", len(values)-maxListedNumbers))
			break
		}
		parts = append(parts, core.FormatMoney(v))
	}
	return strings.Join(parts, ", ")
}
