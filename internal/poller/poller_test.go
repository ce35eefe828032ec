package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relayops/relaybot/internal/command"
)

// fakeTransport scripts one session's worth of polling.
type fakeTransport struct {
	disabled      bool
	authErr       error
	publicRoom    string
	publicMembers []string
	newMembers    []string
	commands      map[string][]command.Command

	authenticated int
	loggedOut     int
	helpRooms     []string
	trackedUsers  []string

	// failAfterPoll makes NextSyncCursor fail once polling has run, so a
	// session ends after one full round.
	polled bool
}

func (f *fakeTransport) Disabled() bool { return f.disabled }

func (f *fakeTransport) Authenticate(ctx context.Context) error {
	f.authenticated++
	return f.authErr
}

func (f *fakeTransport) Logout(ctx context.Context) error {
	f.loggedOut++
	return nil
}

func (f *fakeTransport) PublicRoomID() string { return f.publicRoom }

func (f *fakeTransport) RoomMembers(ctx context.Context, roomID string) ([]string, error) {
	return f.publicMembers, nil
}

func (f *fakeTransport) GetOrCreatePrivateRoom(ctx context.Context, userID string) (string, error) {
	f.trackedUsers = append(f.trackedUsers, userID)
	return "!priv-" + userID, nil
}

func (f *fakeTransport) NextSyncCursor(ctx context.Context) (string, error) {
	if f.polled {
		return "", errors.New("session over")
	}
	return "s0", nil
}

func (f *fakeTransport) PollNewMembers(ctx context.Context, roomID string) ([]string, error) {
	return f.newMembers, nil
}

func (f *fakeTransport) PollCommands(ctx context.Context, roomID, token string) ([]command.Command, error) {
	f.polled = true
	return f.commands[roomID], nil
}

func (f *fakeTransport) SendHelp(ctx context.Context, roomID string) error {
	f.helpRooms = append(f.helpRooms, roomID)
	return nil
}

// recordingHandler collects commands, optionally failing on a member.
type recordingHandler struct {
	handled []command.Command
	failFor string
}

func (h *recordingHandler) HandleCommand(ctx context.Context, cmd command.Command) error {
	h.handled = append(h.handled, cmd)
	if h.failFor != "" && cmd.Member == h.failFor {
		return errors.New("boom")
	}
	return nil
}

func runOneSession(t *testing.T, transport *fakeTransport, handler *recordingHandler) {
	t.Helper()
	old := pollInterval
	pollInterval = time.Millisecond
	t.Cleanup(func() { pollInterval = old })

	p := New(transport, handler, time.Millisecond)
	if err := p.session(context.Background()); err == nil {
		t.Fatal("session should end with the scripted cursor error")
	}
}

func TestDisabledTransportDoesNotPoll(t *testing.T) {
	transport := &fakeTransport{disabled: true}
	p := New(transport, &recordingHandler{}, time.Millisecond)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if transport.authenticated != 0 {
		t.Error("disabled transport must not authenticate")
	}
}

func TestSessionBootstrapsPrivateRooms(t *testing.T) {
	transport := &fakeTransport{
		publicRoom:    "!pub:x",
		publicMembers: []string{"@a:x", "@b:x"},
		commands:      map[string][]command.Command{},
	}
	runOneSession(t, transport, &recordingHandler{})

	if len(transport.trackedUsers) != 2 {
		t.Errorf("tracked users = %v", transport.trackedUsers)
	}
	if transport.loggedOut != 1 {
		t.Errorf("logout count = %d, want 1", transport.loggedOut)
	}
}

func TestSessionRoutesCommands(t *testing.T) {
	transport := &fakeTransport{
		publicRoom:    "!pub:x",
		publicMembers: []string{"@a:x"},
		commands: map[string][]command.Command{
			"!priv-@a:x": {
				{Kind: command.KindSubscribe, Member: "turboflakes", Sender: "@a:x"},
				{Kind: command.KindHelp, Sender: "@a:x"},
			},
			"!pub:x": {
				{Kind: command.KindUnsubscribeAll, Sender: "@b:x"},
			},
		},
	}
	handler := &recordingHandler{}
	runOneSession(t, transport, handler)

	if len(handler.handled) != 2 {
		t.Fatalf("handled = %+v", handler.handled)
	}
	if handler.handled[0].Member != "turboflakes" || handler.handled[1].Kind != command.KindUnsubscribeAll {
		t.Errorf("handled = %+v", handler.handled)
	}
	if len(transport.helpRooms) != 1 || transport.helpRooms[0] != "!priv-@a:x" {
		t.Errorf("help rooms = %v", transport.helpRooms)
	}
}

func TestFailingCommandDoesNotStopBatch(t *testing.T) {
	transport := &fakeTransport{
		publicRoom:    "!pub:x",
		publicMembers: []string{"@a:x"},
		commands: map[string][]command.Command{
			"!priv-@a:x": {
				{Kind: command.KindSubscribe, Member: "bad", Sender: "@a:x"},
				{Kind: command.KindSubscribe, Member: "good", Sender: "@a:x"},
			},
		},
	}
	handler := &recordingHandler{failFor: "bad"}
	runOneSession(t, transport, handler)

	if len(handler.handled) != 2 {
		t.Fatalf("expected both commands attempted, handled = %+v", handler.handled)
	}
}

func TestNewPublicMembersGetPrivateRooms(t *testing.T) {
	transport := &fakeTransport{
		publicRoom: "!pub:x",
		newMembers: []string{"@late:x"},
		commands:   map[string][]command.Command{},
	}
	runOneSession(t, transport, &recordingHandler{})

	if len(transport.trackedUsers) != 1 || transport.trackedUsers[0] != "@late:x" {
		t.Errorf("tracked users = %v", transport.trackedUsers)
	}
}
