package engine

import (
	"errors"

	"github.com/zapagent/zapagent/internal/provider"
)

const errorReplyHeader = "❌ *Erro ao processar sua mensagem*\n\n"

// errorReply maps a run failure onto the friendly reply the user sees. The
// buckets distinguish what the user can act on: wait, retry, or call the
// administrator.
func errorReply(err error) string {
	if errors.Is(err, provider.ErrEmptyChain) {
		return configReply()
	}

	var perr *provider.Error
	if errors.As(err, &perr) {
		switch perr.Kind {
		case provider.KindAuth:
			return configReply()
		case provider.KindRateLimit:
			return errorReplyHeader +
				"⏱️ Muitas requisições.\nAguarde um momento e tente novamente."
		case provider.KindTimeout, provider.KindUnavailable:
			return errorReplyHeader +
				"🌐 Problema de conexão com o servidor.\nTente novamente em alguns instantes."
		}
	}

	return errorReplyHeader +
		"🔧 Erro técnico.\nPor favor, tente novamente ou contate o suporte."
}

// configReply is the apology for misconfiguration the user cannot fix.
func configReply() string {
	return errorReplyHeader +
		"⚙️ O sistema não está configurado corretamente.\nPor favor, contate o administrador."
}

// degradedReply is sent when the tool loop hits its iteration cap without a
// final answer.
func degradedReply() string {
	return "⚠️ Não consegui concluir sua solicitação com as ferramentas disponíveis.\n" +
		"Tente reformular sua mensagem."
}
