package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEquivalent(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{name: "identical", a: "en", b: "en", want: true},
		{name: "regional variants", a: "en-US", b: "en-GB", want: true},
		{name: "region vs bare", a: "pt-BR", b: "pt", want: true},
		{name: "different base", a: "en", b: "ja", want: false},
		{name: "chinese scripts apart", a: "zh-Hant", b: "zh-Hans", want: false},
		{name: "taiwan implies traditional", a: "zh-TW", b: "zh-Hant", want: true},
		{name: "bare chinese is simplified", a: "zh", b: "zh-CN", want: true},
		{name: "cantonese is not mandarin", a: "yue", b: "zh", want: false},
		{name: "auto never matches", a: "auto", b: "en", want: false},
		{name: "empty never matches", a: "", b: "", want: false},
		{name: "case and spaces", a: " EN-us ", b: "en", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equivalent(tt.a, tt.b))
		})
	}
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "hello big world", NormalizeText("  hello\n big\t\tworld "))
	assert.Equal(t, "", NormalizeText(" \n "))
	assert.Equal(t, 10, CharCount("hello world"))
	assert.Equal(t, 2, CharCount("你好"))
}

func TestEffective(t *testing.T) {
	assert.Equal(t, "de", Effective("de", "en", nil))
	assert.Equal(t, "en", Effective("auto", "en", nil))
	assert.Equal(t, "", Effective("", "", nil))

	samples := []string{
		"The quick brown fox jumps over the lazy dog and keeps running",
		"Another perfectly ordinary English sentence about the weather today",
		"We are going to the market to buy some fresh bread and milk",
	}
	assert.Equal(t, "en", Effective(Auto, "", samples))
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "zh-Hant", Canonical(" zh-hant "))
	assert.Equal(t, "auto", Canonical("AUTO"))
	assert.Equal(t, "not a tag!", Canonical("not a tag!"))
}
