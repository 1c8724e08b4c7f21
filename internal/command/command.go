// Package command matches inbound text against a connection's command table
// and executes the matched command's effect.
//
// Matching is two-phased: exact triggers win first (longest trigger checked
// first), then the agent-switch prefix matches when the text extends it.
// Matching is case-insensitive unless the switch prefix is configured
// otherwise. Replies are rendered in the connection's configured language;
// the builtin defaults are Portuguese.
package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zapagent/zapagent/internal/history"
	"github.com/zapagent/zapagent/internal/log"
	"github.com/zapagent/zapagent/internal/model"
)

// helpAlias is accepted as a synonym for the help command's trigger.
const helpAlias = "#help"

// Fallback replies used when a command row carries no response text.
const (
	fallbackActivated   = "🤖 *IA Ativada!*"
	fallbackDeactivated = "😴 *IA Desativada!*"
	fallbackCleared     = "🧹 *Histórico limpo!*\n\nSeu histórico de conversas foi apagado."
)

// Options tune the router's matching behavior.
type Options struct {
	// CaseSensitivePrefix makes the agent-switch prefix comparison
	// case-sensitive. Exact triggers stay case-insensitive.
	CaseSensitivePrefix bool
}

// Router resolves and executes chat commands for a connection.
type Router struct {
	source model.ConfigSource
	hist   history.Store
	opts   Options
	logger log.Logger
}

// New creates a command router reading command tables from source and
// clearing transcripts through hist.
func New(source model.ConfigSource, hist history.Store, opts Options, logger log.Logger) *Router {
	return &Router{
		source: source,
		hist:   hist,
		opts:   opts,
		logger: logger.With("component", "command"),
	}
}

// Match returns the enabled command triggered by text, if any. It never
// executes effects.
func (r *Router) Match(connID, text string) (model.Command, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return model.Command{}, false
	}
	lower := strings.ToLower(trimmed)
	cmds := r.source.Commands(connID)

	exact := make([]model.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Enabled {
			exact = append(exact, c)
		}
	}
	sort.SliceStable(exact, func(i, j int) bool {
		return len(exact[i].Trigger) > len(exact[j].Trigger)
	})
	for _, c := range exact {
		if lower == strings.ToLower(c.Trigger) {
			return c, true
		}
		if c.CommandID == model.CmdHelp && lower == helpAlias {
			return c, true
		}
	}

	for _, c := range exact {
		if c.CommandID != model.CmdSwitchAgent {
			continue
		}
		if r.opts.CaseSensitivePrefix {
			if strings.HasPrefix(trimmed, c.Trigger) && len(trimmed) > len(c.Trigger) {
				return c, true
			}
			continue
		}
		if strings.HasPrefix(lower, strings.ToLower(c.Trigger)) && len(trimmed) > len(c.Trigger) {
			return c, true
		}
	}
	return model.Command{}, false
}

// Handle matches text against the connection's command table and executes the
// effect. handled reports whether a command consumed the message; when it did,
// reply carries the text to send back (possibly empty).
func (r *Router) Handle(ctx context.Context, conn model.Connection, counterpart, text string) (reply string, handled bool, err error) {
	cmd, ok := r.Match(conn.ID, text)
	if !ok {
		return "", false, nil
	}

	r.logger.Info("command matched",
		"connection", conn.ID,
		"counterpart", counterpart,
		"command", string(cmd.CommandID),
	)

	switch cmd.CommandID {
	case model.CmdActivate:
		if err := r.source.SetAutoReply(conn.ID, true); err != nil {
			return "", true, fmt.Errorf("command: activate auto-reply: %w", err)
		}
		return responseOr(cmd, fallbackActivated), true, nil

	case model.CmdDeactivate:
		if err := r.source.SetAutoReply(conn.ID, false); err != nil {
			return "", true, fmt.Errorf("command: deactivate auto-reply: %w", err)
		}
		return responseOr(cmd, fallbackDeactivated), true, nil

	case model.CmdClear:
		if err := r.hist.Clear(ctx, conn.ID, counterpart); err != nil {
			return "", true, fmt.Errorf("command: clear history: %w", err)
		}
		return responseOr(cmd, fallbackCleared), true, nil

	case model.CmdHelp:
		return r.helpText(conn.ID), true, nil

	case model.CmdStatus:
		return r.statusText(ctx, conn, counterpart), true, nil

	case model.CmdListAgents:
		return r.listText(conn), true, nil

	case model.CmdSwitchAgent:
		return r.switchAgent(conn, cmd, text)

	default:
		// Custom command: static response only.
		return cmd.Response, true, nil
	}
}

func responseOr(cmd model.Command, fallback string) string {
	if cmd.Response != "" {
		return cmd.Response
	}
	return fallback
}

// switchAgent activates the agent named by the code suffix after the prefix.
func (r *Router) switchAgent(conn model.Connection, cmd model.Command, text string) (string, bool, error) {
	code := strings.TrimSpace(text)[len(cmd.Trigger):]

	agent, err := r.source.AgentByCode(code)
	if errors.Is(err, model.ErrAgentNotFound) {
		return fmt.Sprintf("❌ Agente *%s* não encontrado", code), true, nil
	}
	if err != nil {
		return "", true, fmt.Errorf("command: resolve agent %q: %w", code, err)
	}

	if err := r.source.SetActiveAgent(conn.ID, agent.ID); err != nil {
		return "", true, fmt.Errorf("command: activate agent %q: %w", agent.ID, err)
	}

	if cmd.Response != "" {
		return renderTemplate(cmd.Response, map[string]string{
			"agente_nome":      agent.Name,
			"agente_descricao": agent.Description,
			"agente_papel":     agent.Role,
		}), true, nil
	}

	reply := fmt.Sprintf("✅ *Agente Ativado!*\n\n🤖 *%s*", agent.Name)
	if agent.Description != "" {
		reply += fmt.Sprintf("\n_%s_", agent.Description)
	}
	return reply, true, nil
}

// helpText builds the help reply from the enabled commands.
func (r *Router) helpText(connID string) string {
	var b strings.Builder
	b.WriteString("📚 *Comandos Disponíveis:*\n\n")
	for _, c := range r.source.Commands(connID) {
		if !c.Enabled {
			continue
		}
		if c.CommandID == model.CmdSwitchAgent {
			fmt.Fprintf(&b, "🔄 *%s01, %s02...* - %s\n", c.Trigger, c.Trigger, c.Description)
			continue
		}
		fmt.Fprintf(&b, "▪️ *%s* - %s\n", c.Trigger, c.Description)
	}
	b.WriteString("\n💬 Para conversar normalmente, basta enviar sua mensagem!")
	return b.String()
}

// statusText builds the session status reply. The connection record is
// re-read so the reply reflects flips made earlier in the same conversation.
func (r *Router) statusText(ctx context.Context, conn model.Connection, counterpart string) string {
	if fresh, err := r.source.ConnectionByID(conn.ID); err == nil {
		conn = fresh
	}

	count, err := r.hist.Count(ctx, conn.ID, counterpart)
	if err != nil {
		r.logger.Warn("history count failed", "connection", conn.ID, "error", err)
	}

	agentLabel := "Nenhum"
	if conn.ActiveAgentID != "" {
		if agent, err := r.source.AgentByID(conn.ActiveAgentID); err == nil {
			agentLabel = fmt.Sprintf("#%s - %s", agent.Code, agent.Name)
		}
	}

	iaStatus := "🔴 Desativada"
	if conn.AutoReply {
		iaStatus = "🟢 Ativada"
	}

	return fmt.Sprintf("📊 *Status da Sessão:*\n\n🤖 IA: %s\n💬 Mensagens: %d\n👤 Agente: %s",
		iaStatus, count, agentLabel)
}

// listText builds the agent catalog reply, marking the active agent.
func (r *Router) listText(conn model.Connection) string {
	agents := r.source.Agents()
	if len(agents) == 0 {
		return "⚠️ *Nenhum agente disponível*"
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Code < agents[j].Code })

	prefix := "#"
	for _, c := range r.source.Commands(conn.ID) {
		if c.CommandID == model.CmdSwitchAgent && c.Enabled {
			prefix = c.Trigger
			break
		}
	}

	var b strings.Builder
	b.WriteString("🤖 *Agentes Disponíveis:*\n\n")
	for _, a := range agents {
		marker := "⚪"
		if conn.ActiveAgentID == a.ID {
			marker = "✅"
		}
		fmt.Fprintf(&b, "%s *%s%s* - %s\n", marker, prefix, a.Code, a.Name)
		if a.Description != "" {
			fmt.Fprintf(&b, "   _%s_\n", a.Description)
		}
	}
	fmt.Fprintf(&b, "\n💡 Digite *%sXX* para ativar um agente", prefix)
	return b.String()
}

// renderTemplate substitutes {name} placeholders; unknown placeholders are
// left intact.
func renderTemplate(text string, vars map[string]string) string {
	for name, value := range vars {
		text = strings.ReplaceAll(text, "{"+name+"}", value)
	}
	return text
}
