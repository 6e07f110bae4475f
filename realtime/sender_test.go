package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	state State
	sent  []interface{}
	err   error
}

func (f *fakeTransport) State() State { return f.state }

func (f *fakeTransport) Send(destination string, body interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, body)
	return nil
}

type fakeRESTSender struct {
	calls     int
	confirmed ChatMessage
	err       error
}

func (f *fakeRESTSender) SendMessage(ctx context.Context, senderID, receiverID int64, content string) (ChatMessage, error) {
	f.calls++
	if f.err != nil {
		return ChatMessage{}, f.err
	}
	return f.confirmed, nil
}

func TestSenderUsesLiveTransportWhenConnected(t *testing.T) {
	transport := &fakeTransport{state: StateConnected}
	rest := &fakeRESTSender{}
	sender := NewSender(1, transport, rest)

	msg, err := sender.SendChatMessage(context.Background(), 2, "over the socket")
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.SenderID)
	assert.Equal(t, int64(2), msg.ReceiverID)
	assert.Len(t, transport.sent, 1)
	assert.Zero(t, rest.calls, "REST fallback must not fire on a live send")
}

func TestSenderFallsBackToRESTWhileDisconnected(t *testing.T) {
	transport := &fakeTransport{state: StateDisconnected}
	confirmed := ChatMessage{ID: 77, SenderID: 1, ReceiverID: 2, Content: "via rest", CreatedAt: time.Now().UTC()}
	rest := &fakeRESTSender{confirmed: confirmed}
	sender := NewSender(1, transport, rest)

	msg, err := sender.SendChatMessage(context.Background(), 2, "via rest")
	require.NoError(t, err)
	assert.Equal(t, confirmed, msg, "fallback returns the server-confirmed record")
	assert.Empty(t, transport.sent)
	assert.Equal(t, 1, rest.calls)
}

func TestSenderFallsBackToRESTOnTransportWriteFailure(t *testing.T) {
	transport := &fakeTransport{state: StateConnected, err: errors.New("broken pipe")}
	rest := &fakeRESTSender{confirmed: ChatMessage{ID: 5, SenderID: 1, ReceiverID: 2, Content: "recovered"}}
	sender := NewSender(1, transport, rest)

	msg, err := sender.SendChatMessage(context.Background(), 2, "recovered")
	require.NoError(t, err)
	assert.Equal(t, int64(5), msg.ID)
	assert.Equal(t, 1, rest.calls)
}

func TestSenderSurfacesFallbackFailure(t *testing.T) {
	transport := &fakeTransport{state: StateDisconnected}
	rest := &fakeRESTSender{err: errors.New("api unreachable")}
	sender := NewSender(1, transport, rest)

	_, err := sender.SendChatMessage(context.Background(), 2, "lost")
	require.Error(t, err)
	assert.Equal(t, 1, rest.calls)
}

func TestSenderRejectsInvalidMessages(t *testing.T) {
	transport := &fakeTransport{state: StateConnected}
	rest := &fakeRESTSender{}
	sender := NewSender(1, transport, rest)

	for name, send := range map[string]func() (ChatMessage, error){
		"missing receiver": func() (ChatMessage, error) { return sender.SendChatMessage(context.Background(), 0, "hi") },
		"self message":     func() (ChatMessage, error) { return sender.SendChatMessage(context.Background(), 1, "hi") },
		"empty content":    func() (ChatMessage, error) { return sender.SendChatMessage(context.Background(), 2, "") },
	} {
		t.Run(name, func(t *testing.T) {
			_, err := send()
			require.Error(t, err)
		})
	}
	assert.Empty(t, transport.sent)
	assert.Zero(t, rest.calls)
}
