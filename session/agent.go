package session

import (
	"strings"

	"callkit/transports"
)

// IsAgentIdentity reports whether a participant identity looks like an agent.
func IsAgentIdentity(identity string) bool {
	id := strings.ToLower(identity)
	return strings.Contains(id, "agent") || strings.Contains(id, "assistant")
}

// pickAgent returns the first remote participant accepted by match, or the
// first remote participant when none matches. In rooms with several humans the
// fallback can pick the wrong one.
func pickAgent(participants []transports.Participant, match func(string) bool) (transports.Participant, bool) {
	var first *transports.Participant
	for i := range participants {
		p := participants[i]
		if p.Local {
			continue
		}
		if match(p.Identity) {
			return p, true
		}
		if first == nil {
			first = &participants[i]
		}
	}
	if first != nil {
		return *first, true
	}
	return transports.Participant{}, false
}
