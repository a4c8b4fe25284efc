package textproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeAndStem_Deterministic(t *testing.T) {
	inputs := []string{
		"Qual é o horário de trabalho?",
		"Onde encontro informações sobre o vale-refeição?",
		"",
		"   ",
		"R$ 35,00 por dia útil",
	}
	for _, in := range inputs {
		first := TokenizeAndStem(in)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, TokenizeAndStem(in), "input %q", in)
		}
	}
}

func TestTokenizeAndStem_LowercasesAndStems(t *testing.T) {
	got := TokenizeAndStem("Qual o HORÁRIO?")
	want := []string{Stem("qual"), Stem("o"), Stem("horário")}
	assert.Equal(t, want, got)
}

func TestTokenizeAndStem_HyphenatedKeptWhole(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"compound", "vale-refeição", "vale-refeição"},
		{"uppercase-compound", "Sexta-Feira", "sexta-feira"},
		{"trailing-hyphen-kept", "home-office-", "home-office-"},
		{"leading-hyphen-kept", "-feira", "-feira"},
		{"digits-with-hyphen", "13-salário", "13-salário"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TokenizeAndStem(tt.in)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestTokenizeAndStem_DropsNonAlphabetic(t *testing.T) {
	got := TokenizeAndStem("das 8h às 17h, 30 dias")
	want := []string{Stem("das"), Stem("às"), Stem("dias")}
	assert.Equal(t, want, got)
}

func TestTokenizeAndStem_LoneHyphenDropped(t *testing.T) {
	assert.Empty(t, TokenizeAndStem(" - - -"))
	assert.Equal(t, []string{"--"}, TokenizeAndStem("- --"))
}

func TestTerms_RemovesStemmedStopwords(t *testing.T) {
	got := Terms("Qual é o horário de trabalho?")
	assert.Equal(t, []string{Stem("horário"), Stem("trabalho")}, got)
	for _, tok := range got {
		assert.False(t, IsStopword(tok))
	}
}

func TestIsStopword_StemToStem(t *testing.T) {
	for _, w := range []string{"de", "como", "qual", "você", "estávamos"} {
		assert.True(t, IsStopword(Stem(w)), "stopword %q", w)
	}
	assert.False(t, IsStopword(Stem("férias")))
}
