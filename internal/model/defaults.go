package model

// DefaultCommands returns the builtin command table for a connection.
// Triggers and reply texts are customizable per connection; these are the
// shipped defaults. Help, status and list replies are generated dynamically
// by the router, so their Response is empty here.
func DefaultCommands(connID string) []Command {
	return []Command{
		{
			ConnectionID: connID,
			CommandID:    CmdActivate,
			Trigger:      "#ativar",
			Enabled:      true,
			Description:  "Ativa o auto-responder da IA",
			Response:     "🤖 *IA Ativada!*\n\nAgora vou responder suas mensagens automaticamente.",
		},
		{
			ConnectionID: connID,
			CommandID:    CmdDeactivate,
			Trigger:      "#desativar",
			Enabled:      true,
			Description:  "Desativa o auto-responder da IA",
			Response:     "😴 *IA Desativada!*\n\nNão vou mais responder automaticamente.\nDigite *#ativar* quando quiser me acordar!",
		},
		{
			ConnectionID: connID,
			CommandID:    CmdClear,
			Trigger:      "#limpar",
			Enabled:      true,
			Description:  "Apaga o histórico de conversas",
			Response:     "🧹 *Histórico limpo!*\n\nSeu histórico de conversas foi apagado.\nVamos começar uma nova conversa! 🆕",
		},
		{
			ConnectionID: connID,
			CommandID:    CmdHelp,
			Trigger:      "#ajuda",
			Enabled:      true,
			Description:  "Mostra comandos disponíveis",
		},
		{
			ConnectionID: connID,
			CommandID:    CmdStatus,
			Trigger:      "#status",
			Enabled:      true,
			Description:  "Mostra informações da conexão",
		},
		{
			ConnectionID: connID,
			CommandID:    CmdListAgents,
			Trigger:      "#listar",
			Enabled:      true,
			Description:  "Lista agentes disponíveis",
		},
		{
			ConnectionID: connID,
			CommandID:    CmdSwitchAgent,
			Trigger:      "#",
			Enabled:      true,
			Description:  "Ativa um agente específico",
			Response:     "✅ *Agente Ativado!*\n\n🤖 *{agente_nome}*\n_{agente_descricao}_\n\nAgora estou pronto para ajudar como {agente_papel}!",
		},
	}
}

// MergeCommands overlays per-connection overrides on the default table.
// An override replaces the default with the same CommandID; overrides with
// unknown IDs are appended as-is. At most one enabled command per trigger
// survives: the first one wins.
func MergeCommands(connID string, overrides []Command) []Command {
	byID := make(map[CommandID]Command, len(overrides))
	for _, c := range overrides {
		byID[c.CommandID] = c
	}

	merged := make([]Command, 0, len(overrides)+7)
	seen := make(map[CommandID]bool)
	for _, def := range DefaultCommands(connID) {
		if ov, ok := byID[def.CommandID]; ok {
			merged = append(merged, ov)
		} else {
			merged = append(merged, def)
		}
		seen[def.CommandID] = true
	}
	for _, c := range overrides {
		if !seen[c.CommandID] {
			merged = append(merged, c)
		}
	}

	// Enforce the one-enabled-command-per-trigger invariant.
	triggers := make(map[string]bool)
	out := merged[:0]
	for _, c := range merged {
		if c.Enabled {
			if triggers[c.Trigger] {
				c.Enabled = false
			}
			triggers[c.Trigger] = true
		}
		out = append(out, c)
	}
	return out
}
