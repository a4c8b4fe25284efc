package remote

// #region imports
import (
	"strings"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/contexts"
)

// #endregion imports

// #region generate-prompt

// BuildPrompt assembles the answer-from-context prompt. At most limit examples
// are included, in the order given.
func BuildPrompt(agentName, question string, examples []contexts.Example, limit int) string {
	if limit >= 0 && len(examples) > limit {
		examples = examples[:limit]
	}
	var b strings.Builder
	b.WriteString("Você é um assistente de IA chamado ")
	b.WriteString(agentName)
	b.WriteString(".\nSua função é responder perguntas usando apenas o contexto fornecido.\n")
	b.WriteString("Se a resposta não estiver no contexto, responda exatamente: \"")
	b.WriteString(RefusalMessage)
	b.WriteString("\"\n\nCONTEXTO:\n")
	for i, ex := range examples {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Pergunta: ")
		b.WriteString(ex.Question)
		b.WriteString("\nResposta: ")
		b.WriteString(ex.Answer)
		b.WriteString("\n")
	}
	b.WriteString("\nPERGUNTA DO USUÁRIO: ")
	b.WriteString(question)
	b.WriteString("\n\nResponda de forma concisa e direta com base apenas no contexto acima.")
	return b.String()
}

// #endregion generate-prompt

// #region enhance-prompt

// BuildEnhancePrompt asks the model to restate answer for question without
// changing any fact.
func BuildEnhancePrompt(agentName, question, answer string) string {
	var b strings.Builder
	b.WriteString("Você é um assistente de IA chamado ")
	b.WriteString(agentName)
	b.WriteString(".\nReescreva a resposta abaixo de forma clara e cordial, ")
	b.WriteString("sem adicionar, remover ou alterar nenhuma informação.\n\n")
	b.WriteString("PERGUNTA DO USUÁRIO: ")
	b.WriteString(question)
	b.WriteString("\nRESPOSTA ORIGINAL: ")
	b.WriteString(answer)
	b.WriteString("\n\nResponda apenas com a resposta reescrita.")
	return b.String()
}

// #endregion enhance-prompt
