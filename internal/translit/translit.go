// Package translit repairs queries typed with a Latin keyboard layout while
// the user meant Russian (ЙЦУКЕН) input.
package translit

import (
	"strings"
	"unicode"
)

var layout = map[rune]rune{
	'f': 'а', ',': 'б', 'd': 'в', 'u': 'г', 'l': 'д', 't': 'е', '`': 'ё',
	';': 'ж', 'p': 'з', 'b': 'и', 'q': 'й', 'r': 'к', 'k': 'л', 'v': 'м',
	'y': 'н', 'j': 'о', 'g': 'п', 'h': 'р', 'c': 'с', 'n': 'т', 'e': 'у',
	'a': 'ф', '[': 'х', 'w': 'ц', 'x': 'ч', 'i': 'ш', 'o': 'щ', 'm': 'ь',
	's': 'ы', ']': 'ъ', '\'': 'э', '.': 'ю', 'z': 'я',

	'F': 'А', '<': 'Б', 'D': 'В', 'U': 'Г', 'L': 'Д', 'T': 'Е', '~': 'Ё',
	':': 'Ж', 'P': 'З', 'B': 'И', 'Q': 'Й', 'R': 'К', 'K': 'Л', 'V': 'М',
	'Y': 'Н', 'J': 'О', 'G': 'П', 'H': 'Р', 'C': 'С', 'N': 'Т', 'E': 'У',
	'A': 'Ф', '{': 'Х', 'W': 'Ц', 'X': 'Ч', 'I': 'Ш', 'O': 'Щ', 'M': 'Ь',
	'S': 'Ы', '}': 'Ъ', '"': 'Э', '>': 'Ю', 'Z': 'Я',

	'@': '"', '#': '№', '$': ';', '^': ':', '&': '?', '/': '.', '?': ',',
}

// TransliterateKeyboardLayout maps every rune through the layout table in a
// single pass. Runes outside the table are kept as they are, so the result
// of one substitution is never substituted again.
func TransliterateKeyboardLayout(text string) string {
	var b strings.Builder
	b.Grow(len(text) * 2)
	for _, r := range text {
		if m, ok := layout[r]; ok {
			b.WriteRune(m)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ShouldTransliterate reports whether text looks like Russian typed on the
// wrong layout: at least one mapped Latin letter and no Cyrillic letters.
func ShouldTransliterate(text string) bool {
	latin := false
	for _, r := range text {
		if unicode.Is(unicode.Cyrillic, r) {
			return false
		}
		if r <= unicode.MaxASCII && unicode.IsLetter(r) {
			latin = true
		}
	}
	return latin
}
