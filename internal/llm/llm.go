// Package llm defines the prose composer port and the prompt it is given.
// Composers only phrase answers; every figure they may use comes from the
// facts bundle in the prompt.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ledgerqa/internal/facts"
)

var ErrEmptyAnswer = errors.New("empty answer from composer")

// Composer turns a facts bundle into a prose answer.
type Composer interface {
	Compose(ctx context.Context, req ComposeRequest) (string, error)
}

// ComposeRequest is one composition attempt. A repair attempt carries the
// rejected answer and the audit's repair instruction.
type ComposeRequest struct {
	Question          string
	Bundle            *facts.Bundle
	PreviousAnswer    string
	RepairInstruction string
}

// Repair reports whether the request is the single retry after a failed audit.
func (r ComposeRequest) Repair() bool {
	return r.RepairInstruction != ""
}

const systemPrompt = "Ты финансовый ассистент. Отвечай по-русски, кратко и по делу.\n" +
	"Правила:\n" +
	"- Используй только суммы из блока FACTS; не вычисляй новые суммы, кроме явно перечисленных.\n" +
	"- Суммы пиши целыми рублями с пробелами между разрядами и знаком ₽, например 12 345 ₽.\n" +
	"- Даты пиши в формате ДД.ММ.ГГГГ.\n" +
	"- Если resolution.empty = true, скажи, что данных за период нет, и не называй сумм за него.\n" +
	"- Если период был обрезан по снимку (wasClampedToSnapshot), назови фактический диапазон.\n" +
	"- Вывод средств владельцем (ownerDraw) и взаимозачеты (offsetNetting) не являются операционными расходами.\n" +
	"- Не используй Markdown-таблицы и блоки кода.\n"

// BuildPrompt renders the full prompt text for req.
func BuildPrompt(req ComposeRequest) (string, error) {
	if req.Bundle == nil {
		return "", errors.New("build prompt: nil bundle")
	}
	body, err := json.MarshalIndent(req.Bundle, "", "  ")
	if err != nil {
		return "", fmt.Errorf("build prompt: marshal facts: %w", err)
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\nFACTS:\n")
	b.Write(body)
	b.WriteString("\n\nВОПРОС:\n")
	b.WriteString(strings.TrimSpace(req.Question))
	b.WriteString("\n")
	if req.Repair() {
		b.WriteString("\nПРЕДЫДУЩИЙ ОТВЕТ:\n")
		b.WriteString(strings.TrimSpace(req.PreviousAnswer))
		b.WriteString("\n\nИСПРАВЛЕНИЕ:\n")
		b.WriteString(req.RepairInstruction)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// CleanAnswer trims whitespace and strips a code fence the model may have
// wrapped the answer in.
func CleanAnswer(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.Trim(s, "`")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
