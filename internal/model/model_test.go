package model

import (
	"errors"
	"testing"
)

func TestMergeCommands_DefaultsOnly(t *testing.T) {
	cmds := MergeCommands("conn-1", nil)

	if len(cmds) != 7 {
		t.Fatalf("expected 7 default commands, got %d", len(cmds))
	}

	byID := make(map[CommandID]Command)
	for _, c := range cmds {
		byID[c.CommandID] = c
	}

	tests := []struct {
		id      CommandID
		trigger string
	}{
		{CmdActivate, "#ativar"},
		{CmdDeactivate, "#desativar"},
		{CmdClear, "#limpar"},
		{CmdHelp, "#ajuda"},
		{CmdStatus, "#status"},
		{CmdListAgents, "#listar"},
		{CmdSwitchAgent, "#"},
	}
	for _, tt := range tests {
		c, ok := byID[tt.id]
		if !ok {
			t.Errorf("missing default command %q", tt.id)
			continue
		}
		if c.Trigger != tt.trigger {
			t.Errorf("command %q: trigger = %q, want %q", tt.id, c.Trigger, tt.trigger)
		}
		if !c.Enabled {
			t.Errorf("command %q should be enabled by default", tt.id)
		}
		if c.ConnectionID != "conn-1" {
			t.Errorf("command %q: connection = %q, want conn-1", tt.id, c.ConnectionID)
		}
	}
}

func TestMergeCommands_OverrideReplacesDefault(t *testing.T) {
	overrides := []Command{
		{ConnectionID: "c", CommandID: CmdClear, Trigger: "/reset", Enabled: true, Response: "done"},
		{ConnectionID: "c", CommandID: CmdHelp, Trigger: "#ajuda", Enabled: false},
	}

	cmds := MergeCommands("c", overrides)

	var clear, help Command
	for _, c := range cmds {
		switch c.CommandID {
		case CmdClear:
			clear = c
		case CmdHelp:
			help = c
		}
	}
	if clear.Trigger != "/reset" || clear.Response != "done" {
		t.Errorf("clear override not applied: %+v", clear)
	}
	if help.Enabled {
		t.Error("disabled help override should stay disabled")
	}
}

func TestMergeCommands_OneEnabledPerTrigger(t *testing.T) {
	overrides := []Command{
		{ConnectionID: "c", CommandID: CmdClear, Trigger: "#x", Enabled: true},
		{ConnectionID: "c", CommandID: CmdStatus, Trigger: "#x", Enabled: true},
	}

	cmds := MergeCommands("c", overrides)

	enabled := 0
	for _, c := range cmds {
		if c.Trigger == "#x" && c.Enabled {
			enabled++
		}
	}
	if enabled != 1 {
		t.Errorf("expected exactly 1 enabled command for trigger #x, got %d", enabled)
	}
}

func TestMemorySource_AgentByCode(t *testing.T) {
	src := NewMemorySource()
	src.PutAgent(Agent{ID: "a1", Name: "Vendas", Code: "01"})
	src.PutAgent(Agent{ID: "a2", Name: "Suporte", Code: "SUP"})

	tests := []struct {
		code    string
		wantID  string
		wantErr bool
	}{
		{"01", "a1", false},
		{"sup", "a2", false},
		{"SUP", "a2", false},
		{"99", "", true},
	}
	for _, tt := range tests {
		a, err := src.AgentByCode(tt.code)
		if tt.wantErr {
			if !errors.Is(err, ErrAgentNotFound) {
				t.Errorf("AgentByCode(%q) error = %v, want ErrAgentNotFound", tt.code, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("AgentByCode(%q) unexpected error: %v", tt.code, err)
			continue
		}
		if a.ID != tt.wantID {
			t.Errorf("AgentByCode(%q) = %q, want %q", tt.code, a.ID, tt.wantID)
		}
	}
}

func TestMemorySource_Setters(t *testing.T) {
	src := NewMemorySource()
	src.PutConnection(Connection{ID: "c1", AutoReply: false, ActiveAgentID: "a1"})
	src.PutAgent(Agent{ID: "a1"})
	src.PutAgent(Agent{ID: "a2"})

	if err := src.SetAutoReply("c1", true); err != nil {
		t.Fatalf("SetAutoReply: %v", err)
	}
	c, err := src.ConnectionByID("c1")
	if err != nil {
		t.Fatalf("ConnectionByID: %v", err)
	}
	if !c.AutoReply {
		t.Error("AutoReply should be true after SetAutoReply")
	}

	if err := src.SetActiveAgent("c1", "a2"); err != nil {
		t.Fatalf("SetActiveAgent: %v", err)
	}
	c, _ = src.ConnectionByID("c1")
	if c.ActiveAgentID != "a2" {
		t.Errorf("ActiveAgentID = %q, want a2", c.ActiveAgentID)
	}

	if err := src.SetActiveAgent("c1", "missing"); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("SetActiveAgent(missing) error = %v, want ErrAgentNotFound", err)
	}
	if err := src.SetAutoReply("missing", true); !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("SetAutoReply(missing) error = %v, want ErrConnectionNotFound", err)
	}
}

func TestEntryText(t *testing.T) {
	e := Entry{Role: RoleUser, Parts: []Part{{Text: "olá "}, {ImageRef: "ref"}, {Text: "mundo"}}}
	if got := e.Text(); got != "olá mundo" {
		t.Errorf("Text() = %q, want %q", got, "olá mundo")
	}
}
