package voiceagent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranscript_RecordsConversationText(t *testing.T) {
	tr := NewTranscript(0)

	tr.HandleFrame(InboundFrame{Kind: FrameText, Data: []byte(`{"type":"ConversationText","role":"user","content":"what time is it"}`)})
	tr.HandleFrame(InboundFrame{Kind: FrameText, Data: []byte(`{"type":"AgentThinking","content":"hmm"}`)})
	tr.HandleFrame(InboundFrame{Kind: FrameBinary, Data: []byte{1, 2}})
	tr.HandleFrame(InboundFrame{Kind: FrameText, Data: []byte(`{"type":"ConversationText","role":"Assistant","content":"Noon."}`)})
	tr.HandleFrame(InboundFrame{Kind: FrameText, Data: []byte(`{"type":"ConversationText","role":"assistant","content":""}`)})

	entries := tr.Entries()
	assert.Len(t, entries, 2)
	assert.Equal(t, "user", entries[0].Role)
	assert.Equal(t, "Noon.", tr.Last("assistant"))
	assert.Equal(t, 1, tr.Count("USER"))
	assert.Equal(t, "", tr.Last("system"))
}

func TestTranscript_KeepsMostRecent(t *testing.T) {
	tr := NewTranscript(2)
	tr.Add("user", "one")
	tr.Add("assistant", "two")
	tr.Add("user", "three")

	entries := tr.Entries()
	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, "two", entries[0].Content)
	assert.Equal(t, "three", entries[1].Content)

	entries[0].Content = "changed"
	assert.Equal(t, "two", tr.Entries()[0].Content)

	tr.Clear()
	assert.Equal(t, 0, tr.Len())
}
