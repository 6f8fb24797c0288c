package session

import "github.com/vango-go/cortes-live/pkg/core/types"

// transcript is the per-connection conversation. Element 0 is always the
// system prompt currently in effect.
type transcript struct {
	msgs []types.Message
}

func newTranscript(systemPrompt string) *transcript {
	t := &transcript{msgs: make([]types.Message, 0, 16)}
	t.msgs = append(t.msgs, types.SystemMessage(systemPrompt))
	return t
}

// replaceSystem swaps element 0 wholesale; it never appends.
func (t *transcript) replaceSystem(prompt string) {
	t.msgs[0] = types.SystemMessage(prompt)
}

func (t *transcript) appendUser(text string) int {
	t.msgs = append(t.msgs, types.UserMessage(text))
	return len(t.msgs) - 1
}

func (t *transcript) appendAssistant(text string) int {
	t.msgs = append(t.msgs, types.AssistantMessage(text))
	return len(t.msgs) - 1
}

func (t *transcript) system() string {
	return t.msgs[0].Content
}

func (t *transcript) len() int {
	return len(t.msgs)
}

func (t *transcript) snapshot() []types.Message {
	return types.CloneMessages(t.msgs)
}
