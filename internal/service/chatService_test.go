package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ds124wfegd/spa-booking/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func customerMessage(roomID, content string) *SendMessageRequest {
	return &SendMessageRequest{RoomID: roomID, SenderID: "cust-1", SenderType: entity.SenderCustomer, Content: content}
}

func TestSendMessage_Clean(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.roomOf(t, env.createBooking(t).ID)

	msg, err := env.svc.Chat.SendMessage(ctx, customerMessage(room.ID, "  See you at 3 pm  "))
	require.NoError(t, err)
	assert.Equal(t, "See you at 3 pm", msg.Content)
	assert.False(t, msg.IsSystemMessage)

	_, err = env.svc.Chat.SendMessage(ctx, &SendMessageRequest{
		RoomID: room.ID, SenderID: "prov-1", SenderType: entity.SenderTherapist, Content: "Noted, thanks",
	})
	require.NoError(t, err)

	msgs, err := env.svc.Chat.ListMessages(ctx, room.ID, "cust-1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "See you at 3 pm", msgs[0].Content)

	toProvider := env.notificationsOf(t, "prov-1", entity.NotifyChatMessage)
	require.Len(t, toProvider, 1)
	assert.Equal(t, "See you at 3 pm", toProvider[0].Message)
	assert.Len(t, env.notificationsOf(t, "cust-1", entity.NotifyChatMessage), 1)
}

func TestSendMessage_Validation(t *testing.T) {
	env := newTestEnv(t)
	room := env.roomOf(t, env.createBooking(t).ID)

	tests := []struct {
		name string
		req  *SendMessageRequest
		want error
	}{
		{"empty content", customerMessage(room.ID, "   "), entity.ErrInvalidInput},
		{"system sender", &SendMessageRequest{RoomID: room.ID, SenderID: "cust-1", SenderType: entity.SenderSystem, Content: "hi"}, entity.ErrInvalidInput},
		{"too long", customerMessage(room.ID, strings.Repeat("a", 2001)), entity.ErrInvalidInput},
		{"stranger", &SendMessageRequest{RoomID: room.ID, SenderID: "someone", SenderType: entity.SenderCustomer, Content: "hi"}, entity.ErrNotRoomMember},
		{"wrong role", &SendMessageRequest{RoomID: room.ID, SenderID: "cust-1", SenderType: entity.SenderTherapist, Content: "hi"}, entity.ErrNotRoomMember},
		{"unknown room", customerMessage("nope", "hi"), entity.ErrRoomNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Chat.SendMessage(context.Background(), tt.req)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestSendMessage_ContactInfoBlocked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.roomOf(t, env.createBooking(t).ID)

	_, err := env.svc.Chat.SendMessage(ctx, customerMessage(room.ID, "call me at 081234567890"))
	require.Error(t, err)
	assert.Equal(t, entity.KindContentViolation, entity.KindOf(err))

	account, err := env.store.Accounts.Get(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, 1, account.ViolationCount)

	msgs, err := env.store.Chat.ListMessages(ctx, room.ID, 100)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, env.notificationsOf(t, "prov-1", entity.NotifyChatMessage))
}

func TestSendMessage_EscalatesToRestriction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.roomOf(t, env.createBooking(t).ID)

	for i := 1; i <= 4; i++ {
		_, err := env.svc.Chat.SendMessage(ctx, customerMessage(room.ID, "add me on whatsapp"))
		require.Error(t, err)
		assert.Equal(t, entity.KindContentViolation, entity.KindOf(err), "attempt %d", i)
		if i >= 3 {
			assert.Contains(t, err.Error(), "final warning")
		}
	}

	_, err := env.svc.Chat.SendMessage(ctx, customerMessage(room.ID, "add me on whatsapp"))
	assert.True(t, errors.Is(err, entity.ErrAccountRestricted), "got %v", err)
	assert.Len(t, env.notificationsOf(t, "cust-1", entity.NotifyAccountRestricted), 1)

	// restricted accounts cannot send clean messages either
	_, err = env.svc.Chat.SendMessage(ctx, customerMessage(room.ID, "hello"))
	assert.True(t, errors.Is(err, entity.ErrAccountRestricted))

	account, err := env.store.Accounts.Get(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, 5, account.ViolationCount)

	cleared, err := env.svc.Chat.ClearRestriction(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, cleared)

	_, err = env.svc.Chat.SendMessage(ctx, customerMessage(room.ID, "hello again"))
	require.NoError(t, err)

	account, err = env.store.Accounts.Get(ctx, "cust-1")
	require.NoError(t, err)
	assert.Zero(t, account.ViolationCount)
}

func TestPostSystemMessage_Dedup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.roomOf(t, env.createBooking(t).ID)

	msg, inserted, err := env.svc.Chat.PostSystemMessage(ctx, room.ID, "k1", "call me maybe? system text is not scanned")
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, entity.SenderSystem, msg.SenderType)

	_, inserted, err = env.svc.Chat.PostSystemMessage(ctx, room.ID, "k1", "again")
	require.NoError(t, err)
	assert.False(t, inserted)

	msgs, err := env.store.Chat.ListMessages(ctx, room.ID, 100)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestListMessages_NonMember(t *testing.T) {
	env := newTestEnv(t)
	room := env.roomOf(t, env.createBooking(t).ID)

	_, err := env.svc.Chat.ListMessages(context.Background(), room.ID, "intruder", 10)
	assert.True(t, errors.Is(err, entity.ErrNotRoomMember))
}
