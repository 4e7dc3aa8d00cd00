package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Quantity — количество с единицей измерения, разобранное из свободного текста
// вида "200 g" или "1,5 л". Разбор выполняется один раз на границе.
type Quantity struct {
	// Value — число целиком, включая дробную часть.
	Value float64
	// Unit — текст после числа ("g", "л"); может быть пустым.
	Unit string
	// Text — исходная строка без изменений.
	Text string
}

// Whole возвращает целую часть количества: дробная часть отбрасывается.
// Именно это значение списывается со склада при регистрации рецепта.
func (q Quantity) Whole() int64 {
	return int64(math.Trunc(q.Value))
}

// ParseQuantity разбирает количество из начала строки.
//
// Допустимо: "200", "200 g", "1.5 kg", "1,5 л". Разделитель дробной части -
// точка или запятая. Отклоняются с ErrInvalidQuantityFormat строки без цифр,
// со знаком или текстом перед числом, а также с несколькими числами ("2 x 100 g").
func ParseQuantity(text string) (Quantity, error) {
	trimmed := strings.TrimSpace(text)
	invalid := func() (Quantity, error) {
		return Quantity{}, fmt.Errorf("%w: %q", ErrInvalidQuantityFormat, text)
	}

	runes := []rune(trimmed)
	if len(runes) == 0 || !isASCIIDigit(runes[0]) {
		return invalid()
	}

	i := 0
	for i < len(runes) && isASCIIDigit(runes[i]) {
		i++
	}
	intPart := string(runes[:i])

	fracPart := ""
	if i < len(runes) && (runes[i] == '.' || runes[i] == ',') {
		j := i + 1
		for j < len(runes) && isASCIIDigit(runes[j]) {
			j++
		}
		if j == i+1 {
			// разделитель без цифр после него
			return invalid()
		}
		fracPart = string(runes[i+1 : j])
		i = j
	}

	unit := strings.TrimSpace(string(runes[i:]))
	if strings.IndexFunc(unit, unicode.IsDigit) >= 0 {
		return invalid()
	}

	if _, err := strconv.ParseInt(intPart, 10, 64); err != nil {
		return invalid()
	}
	number := intPart
	if fracPart != "" {
		number += "." + fracPart
	}
	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return invalid()
	}

	return Quantity{Value: value, Unit: unit, Text: text}, nil
}

func isASCIIDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
