package regions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonical_Variants(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Toshkent shahar", "Toshkent shahar"},
		{"город Ташкент", "Toshkent shahar"},
		{"Тошкент шаҳри", "Toshkent shahar"},
		{"Фарғона вилояти", "Farg'ona"},
		{"Ферганская область", "Farg'ona"},
		{"Самарқанд вилояти", "Samarqand"},
		{"  Qoraqalpog'iston  ", "Qoraqalpog'iston"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Canonical(tt.in), "input %q", tt.in)
	}
}

func TestCanonical_UnknownPassesThrough(t *testing.T) {
	assert.Equal(t, "Mars Colony", Canonical("Mars Colony"))
	assert.Equal(t, "", Canonical("  "))
}

func TestFromText_RegionMention(t *testing.T) {
	got := FromText("Строительство школы в Самаркандской области")
	require.NotNil(t, got)
	assert.Equal(t, "Samarqand", *got)
}

func TestFromText_DistrictResolvesToParent(t *testing.T) {
	got := FromText("Капитальный ремонт моста в городе Чирчик")
	require.NotNil(t, got)
	assert.Equal(t, "Toshkent viloyati", *got)

	got = FromText("Нукус шаҳридаги бино реконструкцияси")
	require.NotNil(t, got)
	assert.Equal(t, "Qoraqalpog'iston", *got)
}

func TestFromText_LongestMatchWins(t *testing.T) {
	// "Ташкентская область" contains "Ташкент"; the longer variant must win
	// so the text resolves to the province, not the capital city.
	got := FromText("Подрядчик из Ташкентской области")
	require.NotNil(t, got)
	assert.Equal(t, "Toshkent viloyati", *got)
}

func TestFromText_NoMatch(t *testing.T) {
	assert.Nil(t, FromText("Поставка канцелярских товаров"))
	assert.Nil(t, FromText(""))
}

func TestAll_ReturnsCanonicalList(t *testing.T) {
	all := All()
	assert.Len(t, all, 14)
	assert.Contains(t, all, "Toshkent shahar")
	assert.Contains(t, all, "Xorazm")
}
