package agent

import (
	"encoding/json"

	"github.com/kbase-labs/kbagent/pkg/models"
)

// doomLoopThreshold is how many consecutive identical tool-call
// signatures force termination.
const doomLoopThreshold = 3

// doomLoopPrefix starts the finalization message when the guard fires.
const doomLoopPrefix = "I noticed I was repeating the same action. Based on the information gathered: "

// doomGuard tracks the most recent tool-call signatures in a bounded
// deque.
type doomGuard struct {
	sigs []string
}

// push records a signature, keeping only the last doomLoopThreshold.
func (g *doomGuard) push(sig string) {
	g.sigs = append(g.sigs, sig)
	if len(g.sigs) > doomLoopThreshold {
		g.sigs = g.sigs[len(g.sigs)-doomLoopThreshold:]
	}
}

// triggered reports whether the last doomLoopThreshold signatures are
// identical.
func (g *doomGuard) triggered() bool {
	if len(g.sigs) < doomLoopThreshold {
		return false
	}
	first := g.sigs[0]
	for _, s := range g.sigs[1:] {
		if s != first {
			return false
		}
	}
	return true
}

// callSignature canonicalizes a tool call as (name, sorted-key JSON args).
// encoding/json sorts map keys, which is canonical enough for equality.
func callSignature(tc models.ToolCall) string {
	args, err := json.Marshal(tc.Arguments)
	if err != nil {
		args = []byte("{}")
	}
	return tc.Name + "(" + string(args) + ")"
}
