package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"matchpulse/internal/model"
)

type mockTelegramAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	err     error
	noMsgID bool
	nextID  int
}

func (m *mockTelegramAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return tgbotapi.Message{}, m.err
	}
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable type")
	}
	m.sent = append(m.sent, msg)
	if m.noMsgID {
		return tgbotapi.Message{}, nil
	}
	m.nextID++
	return tgbotapi.Message{MessageID: m.nextID}, nil
}

type mockChatResolver struct {
	chats map[string]int64
	err   error
}

func (m *mockChatResolver) TelegramChatID(_ context.Context, userID string) (int64, bool, error) {
	if m.err != nil {
		return 0, false, m.err
	}
	id, ok := m.chats[userID]
	return id, ok, nil
}

func TestTelegramChannelDeliver(t *testing.T) {
	api := &mockTelegramAPI{}
	resolver := &mockChatResolver{chats: map[string]int64{"u-1": 4242}}
	ch := NewTelegramChannelWithAPI(api, resolver)

	ev := testEvent("f-1", "m-1")
	if err := ch.Deliver(context.Background(), ev); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if len(api.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(api.sent))
	}
	if api.sent[0].ChatID != 4242 {
		t.Errorf("chat id = %d, want 4242", api.sent[0].ChatID)
	}
	if !strings.Contains(api.sent[0].Text, "Late Surge") {
		t.Errorf("message %q should contain filter name", api.sent[0].Text)
	}
}

func TestTelegramChannelDeliverErrors(t *testing.T) {
	tests := []struct {
		name     string
		api      *mockTelegramAPI
		resolver *mockChatResolver
	}{
		{
			name:     "no linked chat",
			api:      &mockTelegramAPI{},
			resolver: &mockChatResolver{chats: map[string]int64{}},
		},
		{
			name:     "resolver error",
			api:      &mockTelegramAPI{},
			resolver: &mockChatResolver{err: errors.New("db closed")},
		},
		{
			name:     "send error",
			api:      &mockTelegramAPI{err: errors.New("telegram 502")},
			resolver: &mockChatResolver{chats: map[string]int64{"u-1": 4242}},
		},
		{
			name:     "missing message id treated as failure",
			api:      &mockTelegramAPI{noMsgID: true},
			resolver: &mockChatResolver{chats: map[string]int64{"u-1": 4242}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := NewTelegramChannelWithAPI(tt.api, tt.resolver)
			if err := ch.Deliver(context.Background(), testEvent("f-1", "m-1")); err == nil {
				t.Error("expected delivery error")
			}
		})
	}
}

type mockNotificationStore struct {
	mu      sync.Mutex
	created []model.Notification
	err     error
}

func (m *mockNotificationStore) CreateNotification(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, *n)
	return nil
}

func TestInAppChannelDeliver(t *testing.T) {
	store := &mockNotificationStore{}
	ch := NewInAppChannel(store)

	ev := testEvent("f-1", "m-1")
	if err := ch.Deliver(context.Background(), ev); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("created = %d, want 1", len(store.created))
	}
	n := store.created[0]
	if n.UserID != "u-1" || n.FilterID != "f-1" || n.MatchID != "m-1" {
		t.Errorf("notification keys = %s/%s/%s, want u-1/f-1/m-1", n.UserID, n.FilterID, n.MatchID)
	}
	if n.ID == "" {
		t.Error("notification should get an id")
	}
}

func TestInAppChannelDeliverStoreError(t *testing.T) {
	store := &mockNotificationStore{err: errors.New("disk full")}
	ch := NewInAppChannel(store)
	if err := ch.Deliver(context.Background(), testEvent("f-1", "m-1")); err == nil {
		t.Error("expected delivery error")
	}
}

func TestFormatFireMessage(t *testing.T) {
	min := 2.0
	ev := model.FireEvent{
		Filter: model.Filter{Name: "Comeback Watch"},
		Match: model.LiveMatch{
			HomeTeam: "Arsenal", AwayTeam: "Chelsea",
			HomeScore: 3, AwayScore: 1, Minute: 67,
			Stats: map[model.StatField]float64{model.FieldGoalDifferential: 2},
		},
		Satisfied: []model.Condition{
			{Field: model.FieldGoalDifferential, Min: &min, Mode: model.CompareAtLeast},
		},
	}

	msg := FormatFireMessage(ev)
	for _, want := range []string{"Comeback Watch", "Arsenal 3:1 Chelsea", "(67')", "goal differential: 2"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q should contain %q", msg, want)
		}
	}
}
