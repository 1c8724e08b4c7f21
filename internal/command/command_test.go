package command

import (
	"context"
	"strings"
	"testing"

	"github.com/zapagent/zapagent/internal/history"
	"github.com/zapagent/zapagent/internal/log"
	"github.com/zapagent/zapagent/internal/model"
)

const (
	testConnID      = "conn-1"
	testCounterpart = "5511999990000"
)

func newTestRouter(t *testing.T, opts Options) (*Router, *model.MemorySource, *history.Memory) {
	t.Helper()

	source := model.NewMemorySource()
	source.PutConnection(model.Connection{ID: testConnID, Name: "loja", AutoReply: true})
	source.PutAgent(model.Agent{
		ID: "ag-1", Code: "01", Name: "Vendedor",
		Description: "Especialista em vendas", Role: "vendedor",
	})
	source.PutAgent(model.Agent{ID: "ag-2", Code: "02", Name: "Suporte"})

	hist := history.NewMemory()
	return New(source, hist, opts, log.NewNop()), source, hist
}

func TestMatch_ExactBeforePrefix(t *testing.T) {
	r, _, _ := newTestRouter(t, Options{})

	// "#ajuda" extends the "#" switch prefix but must resolve to the help
	// command via its exact trigger.
	cmd, ok := r.Match(testConnID, "#ajuda")
	if !ok {
		t.Fatal("expected a match")
	}
	if cmd.CommandID != model.CmdHelp {
		t.Errorf("CommandID = %s, want help", cmd.CommandID)
	}
}

func TestMatch_CaseInsensitiveAndWhitespace(t *testing.T) {
	r, _, _ := newTestRouter(t, Options{})

	cmd, ok := r.Match(testConnID, "  #AtIvAr  ")
	if !ok || cmd.CommandID != model.CmdActivate {
		t.Errorf("Match = (%s, %v), want activate", cmd.CommandID, ok)
	}
}

func TestMatch_HelpAlias(t *testing.T) {
	r, _, _ := newTestRouter(t, Options{})

	cmd, ok := r.Match(testConnID, "#help")
	if !ok || cmd.CommandID != model.CmdHelp {
		t.Errorf("Match(#help) = (%s, %v), want help", cmd.CommandID, ok)
	}
}

func TestMatch_DisabledCommandIgnored(t *testing.T) {
	r, source, _ := newTestRouter(t, Options{})
	source.PutCommands(testConnID, []model.Command{
		{ConnectionID: testConnID, CommandID: model.CmdSwitchAgent, Trigger: "#", Enabled: false},
	})

	if _, ok := r.Match(testConnID, "#01"); ok {
		t.Error("disabled switch prefix must not match")
	}
}

func TestMatch_PrefixRequiresSuffix(t *testing.T) {
	r, source, _ := newTestRouter(t, Options{})
	source.PutCommands(testConnID, []model.Command{
		{ConnectionID: testConnID, CommandID: model.CmdSwitchAgent, Trigger: "#ag", Enabled: true},
	})

	if _, ok := r.Match(testConnID, "#ag"); ok {
		t.Error("bare prefix with no code must not match the switch command")
	}
	if cmd, ok := r.Match(testConnID, "#ag01"); !ok || cmd.CommandID != model.CmdSwitchAgent {
		t.Errorf("Match(#ag01) = (%s, %v), want switch_agent", cmd.CommandID, ok)
	}
}

func TestMatch_CaseSensitivePrefixOption(t *testing.T) {
	r, source, _ := newTestRouter(t, Options{CaseSensitivePrefix: true})
	source.PutCommands(testConnID, []model.Command{
		{ConnectionID: testConnID, CommandID: model.CmdSwitchAgent, Trigger: "#Ag", Enabled: true},
	})

	if _, ok := r.Match(testConnID, "#ag01"); ok {
		t.Error("case-sensitive prefix must reject a lowercase trigger")
	}
	if _, ok := r.Match(testConnID, "#Ag01"); !ok {
		t.Error("case-sensitive prefix must accept the exact casing")
	}
}

func TestHandle_NonCommandText(t *testing.T) {
	r, _, _ := newTestRouter(t, Options{})

	reply, handled, err := r.Handle(context.Background(), mustConn(t, r), testCounterpart, "bom dia, tudo bem?")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if handled || reply != "" {
		t.Errorf("Handle = (%q, %v), want unhandled", reply, handled)
	}
}

func TestHandle_ActivateAndDeactivate(t *testing.T) {
	r, source, _ := newTestRouter(t, Options{})
	_ = source.SetAutoReply(testConnID, false)

	reply, handled, err := r.Handle(context.Background(), mustConn(t, r), testCounterpart, "#ativar")
	if err != nil || !handled {
		t.Fatalf("Handle = (%v, %v)", handled, err)
	}
	if !strings.Contains(reply, "IA Ativada") {
		t.Errorf("reply = %q", reply)
	}
	if conn := mustConn(t, r); !conn.AutoReply {
		t.Error("activate must flip auto-reply on")
	}

	reply, _, err = r.Handle(context.Background(), mustConn(t, r), testCounterpart, "#desativar")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(reply, "IA Desativada") {
		t.Errorf("reply = %q", reply)
	}
	if conn := mustConn(t, r); conn.AutoReply {
		t.Error("deactivate must flip auto-reply off")
	}
}

func TestHandle_ClearScopedToCounterpart(t *testing.T) {
	r, _, hist := newTestRouter(t, Options{})
	ctx := context.Background()

	_ = hist.Append(ctx, testConnID, testCounterpart, model.TextEntry(model.RoleUser, "oi"))
	_ = hist.Append(ctx, testConnID, "other", model.TextEntry(model.RoleUser, "oi"))

	reply, handled, err := r.Handle(ctx, mustConn(t, r), testCounterpart, "#limpar")
	if err != nil || !handled {
		t.Fatalf("Handle = (%v, %v)", handled, err)
	}
	if !strings.Contains(reply, "Histórico limpo") {
		t.Errorf("reply = %q", reply)
	}

	if n, _ := hist.Count(ctx, testConnID, testCounterpart); n != 0 {
		t.Errorf("counterpart transcript not cleared: %d entries", n)
	}
	if n, _ := hist.Count(ctx, testConnID, "other"); n != 1 {
		t.Errorf("other counterpart's transcript touched: %d entries", n)
	}
}

func TestHandle_SwitchAgent(t *testing.T) {
	r, _, _ := newTestRouter(t, Options{})

	reply, handled, err := r.Handle(context.Background(), mustConn(t, r), testCounterpart, "#01")
	if err != nil || !handled {
		t.Fatalf("Handle = (%v, %v)", handled, err)
	}
	for _, want := range []string{"Agente Ativado", "Vendedor", "Especialista em vendas", "vendedor"} {
		if !strings.Contains(reply, want) {
			t.Errorf("reply = %q, missing %q", reply, want)
		}
	}
	if conn := mustConn(t, r); conn.ActiveAgentID != "ag-1" {
		t.Errorf("ActiveAgentID = %q, want ag-1", conn.ActiveAgentID)
	}
}

func TestHandle_SwitchAgentCodeIsCaseInsensitive(t *testing.T) {
	r, source, _ := newTestRouter(t, Options{})
	source.PutAgent(model.Agent{ID: "ag-3", Code: "AB", Name: "Triagem"})

	_, handled, err := r.Handle(context.Background(), mustConn(t, r), testCounterpart, "#ab")
	if err != nil || !handled {
		t.Fatalf("Handle = (%v, %v)", handled, err)
	}
	if conn := mustConn(t, r); conn.ActiveAgentID != "ag-3" {
		t.Errorf("ActiveAgentID = %q, want ag-3", conn.ActiveAgentID)
	}
}

func TestHandle_SwitchAgentUnknownCode(t *testing.T) {
	r, _, _ := newTestRouter(t, Options{})

	reply, handled, err := r.Handle(context.Background(), mustConn(t, r), testCounterpart, "#99")
	if err != nil || !handled {
		t.Fatalf("Handle = (%v, %v)", handled, err)
	}
	if !strings.Contains(reply, "*99*") || !strings.Contains(reply, "não encontrado") {
		t.Errorf("reply = %q, want not-found naming the code", reply)
	}
	if conn := mustConn(t, r); conn.ActiveAgentID != "" {
		t.Error("unknown code must not change the active agent")
	}
}

func TestHandle_SwitchAgentTemplateRendering(t *testing.T) {
	r, source, _ := newTestRouter(t, Options{})
	source.PutCommands(testConnID, []model.Command{{
		ConnectionID: testConnID,
		CommandID:    model.CmdSwitchAgent,
		Trigger:      "#",
		Enabled:      true,
		Response:     "Agora: {agente_nome} ({agente_papel}) {desconhecido}",
	}})

	reply, _, err := r.Handle(context.Background(), mustConn(t, r), testCounterpart, "#01")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply != "Agora: Vendedor (vendedor) {desconhecido}" {
		t.Errorf("reply = %q", reply)
	}
}

func TestHandle_Help(t *testing.T) {
	r, _, _ := newTestRouter(t, Options{})

	reply, handled, err := r.Handle(context.Background(), mustConn(t, r), testCounterpart, "#ajuda")
	if err != nil || !handled {
		t.Fatalf("Handle = (%v, %v)", handled, err)
	}
	for _, want := range []string{
		"📚 *Comandos Disponíveis:*",
		"▪️ *#ativar*",
		"🔄 *#01, #02...*",
		"💬 Para conversar normalmente",
	} {
		if !strings.Contains(reply, want) {
			t.Errorf("help text missing %q:\n%s", want, reply)
		}
	}
}

func TestHandle_Status(t *testing.T) {
	r, source, hist := newTestRouter(t, Options{})
	ctx := context.Background()

	_ = source.SetActiveAgent(testConnID, "ag-1")
	_ = hist.Append(ctx, testConnID, testCounterpart, model.TextEntry(model.RoleUser, "oi"))
	_ = hist.Append(ctx, testConnID, testCounterpart, model.TextEntry(model.RoleAssistant, "olá"))

	reply, _, err := r.Handle(ctx, mustConn(t, r), testCounterpart, "#status")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	for _, want := range []string{
		"📊 *Status da Sessão:*",
		"🟢 Ativada",
		"Mensagens: 2",
		"#01 - Vendedor",
	} {
		if !strings.Contains(reply, want) {
			t.Errorf("status text missing %q:\n%s", want, reply)
		}
	}
}

func TestHandle_StatusReflectsDeactivation(t *testing.T) {
	r, source, _ := newTestRouter(t, Options{})
	_ = source.SetAutoReply(testConnID, false)

	// Pass a stale snapshot; status must re-read the flag.
	stale := model.Connection{ID: testConnID, AutoReply: true}
	reply, _, err := r.Handle(context.Background(), stale, testCounterpart, "#status")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(reply, "🔴 Desativada") {
		t.Errorf("status text = %q, want deactivated marker", reply)
	}
}

func TestHandle_ListAgents(t *testing.T) {
	r, source, _ := newTestRouter(t, Options{})
	_ = source.SetActiveAgent(testConnID, "ag-2")

	reply, _, err := r.Handle(context.Background(), mustConn(t, r), testCounterpart, "#listar")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	for _, want := range []string{
		"🤖 *Agentes Disponíveis:*",
		"⚪ *#01* - Vendedor",
		"   _Especialista em vendas_",
		"✅ *#02* - Suporte",
		"💡 Digite *#XX* para ativar um agente",
	} {
		if !strings.Contains(reply, want) {
			t.Errorf("list text missing %q:\n%s", want, reply)
		}
	}
}

func TestHandle_ListAgentsEmpty(t *testing.T) {
	source := model.NewMemorySource()
	source.PutConnection(model.Connection{ID: testConnID})
	r := New(source, history.NewMemory(), Options{}, log.NewNop())

	reply, _, err := r.Handle(context.Background(), model.Connection{ID: testConnID}, testCounterpart, "#listar")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply != "⚠️ *Nenhum agente disponível*" {
		t.Errorf("reply = %q", reply)
	}
}

func mustConn(t *testing.T, r *Router) model.Connection {
	t.Helper()
	conn, err := r.source.ConnectionByID(testConnID)
	if err != nil {
		t.Fatalf("ConnectionByID: %v", err)
	}
	return conn
}
