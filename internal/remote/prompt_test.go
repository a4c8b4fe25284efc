package remote

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/contexts"
)

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("RH Bot", "Como pedir férias?", []contexts.Example{
		{Question: "Como solicitar férias?", Answer: "Pelo portal."},
		{Question: "Qual o horário?", Answer: "8h às 17h."},
	}, 3)

	assert.True(t, strings.HasPrefix(p, "Você é um assistente de IA chamado RH Bot."))
	assert.Contains(t, p, "Pergunta: Como solicitar férias?\nResposta: Pelo portal.\n")
	assert.Contains(t, p, "Pergunta: Qual o horário?\nResposta: 8h às 17h.\n")
	assert.Contains(t, p, RefusalMessage)
	assert.Contains(t, p, "PERGUNTA DO USUÁRIO: Como pedir férias?")
	assert.Less(t, strings.Index(p, "Pelo portal."), strings.Index(p, "8h às 17h."))
}

func TestBuildPrompt_Limit(t *testing.T) {
	ex := []contexts.Example{{Question: "a", Answer: "1"}, {Question: "b", Answer: "2"}}
	assert.Equal(t, 1, strings.Count(BuildPrompt("bot", "q", ex, 1), "Pergunta: "))
	assert.Equal(t, 0, strings.Count(BuildPrompt("bot", "q", ex, 0), "Pergunta: "))
}

func TestBuildEnhancePrompt(t *testing.T) {
	p := BuildEnhancePrompt("RH Bot", "Qual o horário?", "8h às 17h.")
	assert.Contains(t, p, "RH Bot")
	assert.Contains(t, p, "PERGUNTA DO USUÁRIO: Qual o horário?")
	assert.Contains(t, p, "RESPOSTA ORIGINAL: 8h às 17h.")
}
