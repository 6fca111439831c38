package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/diagnosis/stays-bookings/pkg/events"
	"github.com/diagnosis/stays-bookings/services/notify/internal/mailer"
	"github.com/diagnosis/stays-bookings/services/notify/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMailer struct {
	sent    []mailer.Message
	sendErr error
}

func (m *mockMailer) Send(_ context.Context, msg mailer.Message) (string, error) {
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.sent = append(m.sent, msg)
	return "mock-id", nil
}

type mockDirectory map[string]users.Contact

func (d mockDirectory) FindByID(_ context.Context, id string) (*users.Contact, error) {
	c, ok := d[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

var directory = mockDirectory{
	"guest-1": {ID: "guest-1", Email: "guest@example.com", Name: "Gina"},
	"host-1":  {ID: "host-1", Email: "host@example.com", Name: "Hal"},
}

func event(subject, actor string) events.BookingEvent {
	return events.BookingEvent{
		Type:      subject,
		BookingID: "b-1",
		GuestID:   "guest-1",
		HostID:    "host-1",
		StartDate: "2025-06-13",
		EndDate:   "2025-06-15",
		ActorID:   actor,
	}
}

func recipientsOf(sent []mailer.Message) []string {
	out := make([]string, 0, len(sent))
	for _, m := range sent {
		out = append(out, m.ToEmail)
	}
	return out
}

func TestRecipientsPerEvent(t *testing.T) {
	tests := []struct {
		name string
		ev   events.BookingEvent
		want []string
	}{
		{"created goes to host", event(events.BookingCreated, "guest-1"), []string{"host@example.com"}},
		{"confirmed goes to guest", event(events.BookingConfirmed, "host-1"), []string{"guest@example.com"}},
		{"guest cancel tells host", event(events.BookingCancelled, "guest-1"), []string{"host@example.com"}},
		{"host cancel tells guest", event(events.BookingCancelled, "host-1"), []string{"guest@example.com"}},
		{"expired tells both", event(events.BookingExpired, ""), []string{"guest@example.com", "host@example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockMailer{}
			n := New(m, directory, "https://stays.example/")
			require.NoError(t, n.Handle(context.Background(), tt.ev))
			assert.Equal(t, tt.want, recipientsOf(m.sent))
		})
	}
}

func TestMessageContent(t *testing.T) {
	m := &mockMailer{}
	n := New(m, directory, "https://stays.example/")
	ev := event(events.BookingCancelled, "guest-1")
	ev.Reason = "change_of_plans"

	require.NoError(t, n.Handle(context.Background(), ev))
	require.Len(t, m.sent, 1)
	assert.Contains(t, m.sent[0].Text, "2025-06-13 to 2025-06-15")
	assert.Contains(t, m.sent[0].Text, "change_of_plans")
	assert.Contains(t, m.sent[0].Text, "https://stays.example/bookings/b-1")
	assert.Equal(t, "Hal", m.sent[0].ToName)
}

func TestHandleMessageDecodesPayload(t *testing.T) {
	m := &mockMailer{}
	n := New(m, directory, "")
	data, err := json.Marshal(event(events.BookingDeclined, "host-1"))
	require.NoError(t, err)

	require.NoError(t, n.HandleMessage(context.Background(), &events.Message{Subject: events.BookingDeclined, Data: data}))
	assert.Equal(t, []string{"guest@example.com"}, recipientsOf(m.sent))

	err = n.HandleMessage(context.Background(), &events.Message{Subject: events.BookingDeclined, Data: []byte("{")})
	assert.Error(t, err)
}

func TestUnknownUserAndSendFailure(t *testing.T) {
	m := &mockMailer{}
	n := New(m, mockDirectory{}, "")
	assert.NoError(t, n.Handle(context.Background(), event(events.BookingConfirmed, "host-1")))
	assert.Empty(t, m.sent)

	failing := New(&mockMailer{sendErr: errors.New("smtp down")}, directory, "")
	assert.Error(t, failing.Handle(context.Background(), event(events.BookingConfirmed, "host-1")))
}
