package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(id string) Message {
	return Message{ID: id, Feed: Chat, Text: "msg " + id}
}

func ids(msgs []Message) []string {
	res := make([]string, 0, len(msgs))
	for _, m := range msgs {
		res = append(res, m.ID)
	}
	return res
}

func receive(t *testing.T, l <-chan []Message) []Message {
	t.Helper()
	select {
	case w, ok := <-l:
		require.True(t, ok, "listener closed")
		return w
	case <-time.After(time.Second):
		t.Fatal("no window received")
		return nil
	}
}

func TestDispatcher_apply(t *testing.T) {
	tests := []struct {
		name    string
		changes []Change
		wantIDs []string
	}{
		{
			name:    "snapshot",
			changes: []Change{{Type: ChangeSnapshot, Messages: []Message{msg("1"), msg("2")}}},
			wantIDs: []string{"1", "2"},
		},
		{
			name: "added is appended",
			changes: []Change{
				{Type: ChangeSnapshot, Messages: []Message{msg("1")}},
				{Type: ChangeAdded, Messages: []Message{msg("2")}},
			},
			wantIDs: []string{"1", "2"},
		},
		{
			name: "added twice is kept once",
			changes: []Change{
				{Type: ChangeSnapshot, Messages: []Message{msg("1")}},
				{Type: ChangeAdded, Messages: []Message{msg("1")}},
			},
			wantIDs: []string{"1"},
		},
		{
			name: "window is trimmed to the limit",
			changes: []Change{
				{Type: ChangeSnapshot, Messages: []Message{msg("1"), msg("2"), msg("3")}},
				{Type: ChangeAdded, Messages: []Message{msg("4")}},
			},
			wantIDs: []string{"2", "3", "4"},
		},
		{
			name: "removed",
			changes: []Change{
				{Type: ChangeSnapshot, Messages: []Message{msg("1"), msg("2")}},
				{Type: ChangeRemoved, Messages: []Message{msg("1")}},
			},
			wantIDs: []string{"2"},
		},
		{
			name: "changed unknown message is ignored",
			changes: []Change{
				{Type: ChangeSnapshot, Messages: []Message{msg("1")}},
				{Type: ChangeChanged, Messages: []Message{msg("9")}},
			},
			wantIDs: []string{"1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDispatcher(3)
			for _, ch := range tt.changes {
				d.apply(ch)
			}
			assert.Equal(t, tt.wantIDs, ids(d.Messages()))
		})
	}
}

func TestDispatcher_changedReplacesText(t *testing.T) {
	d := newDispatcher(DefaultLimit)
	d.apply(Change{Type: ChangeSnapshot, Messages: []Message{msg("1")}})

	edited := msg("1")
	edited.Text = "edited"
	d.apply(Change{Type: ChangeChanged, Messages: []Message{edited}})

	msgs := d.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "edited", msgs[0].Text)
}

func TestDispatcher_Listen(t *testing.T) {
	changes := make(chan Change)
	d := newDispatcher(DefaultLimit)
	go d.run(changes)

	l, cancel := d.Listen()
	defer cancel()

	changes <- Change{Type: ChangeSnapshot, Messages: []Message{msg("1")}}
	assert.Equal(t, []string{"1"}, ids(receive(t, l)))

	changes <- Change{Type: ChangeAdded, Messages: []Message{msg("2")}}
	assert.Equal(t, []string{"1", "2"}, ids(receive(t, l)))

	// a late listener starts with the current window
	late, cancelLate := d.Listen()
	assert.Equal(t, []string{"1", "2"}, ids(receive(t, late)))
	cancelLate()
	_, ok := <-late
	assert.False(t, ok)

	close(changes)
	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
	_, ok = <-l
	assert.False(t, ok)

	// listening on a stopped dispatcher returns a closed channel
	stopped, _ := d.Listen()
	_, ok = <-stopped
	assert.False(t, ok)
}

func TestDispatcher_slowListenerGetsLatestWindow(t *testing.T) {
	d := newDispatcher(DefaultLimit)
	l, cancel := d.Listen()
	defer cancel()

	d.apply(Change{Type: ChangeSnapshot, Messages: []Message{msg("1")}})
	d.apply(Change{Type: ChangeAdded, Messages: []Message{msg("2")}})
	d.apply(Change{Type: ChangeAdded, Messages: []Message{msg("3")}})

	assert.Equal(t, []string{"1", "2", "3"}, ids(receive(t, l)))
	select {
	case w := <-l:
		t.Fatalf("unexpected window %v", ids(w))
	default:
	}
}
