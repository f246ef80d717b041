package translit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransliterateKeyboardLayout(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "telefon", want: "еудуащт"},
		{in: "Ntktajy", want: "Телефон"},
		{in: "ghbdtn vbh", want: "привет мир"},
		{in: "[kt,", want: "хлеб"},
		{in: "@#$^&/?", want: `"№;:?.,`},
		{in: "", want: ""},
		{in: "123 456", want: "123 456"},
		{in: "уже кириллица", want: "уже кириллица"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, TransliterateKeyboardLayout(tt.in))
		})
	}
}

func TestTransliterateKeyboardLayout_IdentityOnUnmapped(t *testing.T) {
	for _, s := range []string{"12345", "   ", "日本語", "ÄÖÜ", "-_=+!*()"} {
		assert.Equal(t, s, TransliterateKeyboardLayout(s))
	}
}

func TestTransliterateKeyboardLayout_Deterministic(t *testing.T) {
	in := "Vjnjhyjt vfckj 5W-30"
	first := TransliterateKeyboardLayout(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, TransliterateKeyboardLayout(in))
	}
}

func TestLayoutCoversEveryLatinLetter(t *testing.T) {
	for r := 'a'; r <= 'z'; r++ {
		_, lower := layout[r]
		_, upper := layout[r-'a'+'A']
		assert.True(t, lower, string(r))
		assert.True(t, upper, string(r-'a'+'A'))
	}
}

func TestShouldTransliterate(t *testing.T) {
	assert.True(t, ShouldTransliterate("telefon"))
	assert.True(t, ShouldTransliterate("iphone 15"))
	assert.False(t, ShouldTransliterate("телефон"))
	assert.False(t, ShouldTransliterate("iphone чехол"))
	assert.False(t, ShouldTransliterate("12345"))
	assert.False(t, ShouldTransliterate(""))
}
