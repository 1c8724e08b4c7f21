// Package policy resolves what to do with an inbound message based on its
// content type and the connection's configured rules.
package policy

import "github.com/zapagent/zapagent/internal/model"

// Decision is the resolved action for one inbound message, plus the fixed
// reply text when the action is fixed_reply.
type Decision struct {
	Action     model.RuleAction
	FixedReply string
}

// Resolver maps (connection, content type) to a Decision.
type Resolver struct {
	source model.ConfigSource
}

// New creates a policy resolver reading rules from source.
func New(source model.ConfigSource) *Resolver {
	return &Resolver{source: source}
}

// Resolve returns the decision for one message. Absent a matching rule the
// default is to process. A rule with an unknown action is treated as process
// so a misconfigured row never silences a connection.
func (r *Resolver) Resolve(connID string, contentType model.ContentType) Decision {
	for _, rule := range r.source.Rules(connID) {
		if rule.ContentType != contentType {
			continue
		}
		switch rule.Action {
		case model.ActionIgnore, model.ActionFixedReply, model.ActionTranscribeOnly:
			return Decision{Action: rule.Action, FixedReply: rule.FixedReply}
		case model.ActionProcess:
			return Decision{Action: model.ActionProcess}
		}
	}
	return Decision{Action: model.ActionProcess}
}
