// Package poller runs the chat-side session loop: it authenticates the
// bot, keeps a private room per recipient and feeds polled commands into
// the dispatch engine. Any session error tears the whole session down and
// a fresh one starts after the configured interval.
package poller

import (
	"context"
	"log"
	"time"

	"github.com/relayops/relaybot/internal/command"
)

// pollInterval is the fixed sleep between polling rounds. It is a
// variable so tests can shorten it.
var pollInterval = 6 * time.Second

// Transport is the slice of the chat client the poller drives.
type Transport interface {
	Disabled() bool
	Authenticate(ctx context.Context) error
	Logout(ctx context.Context) error
	PublicRoomID() string
	RoomMembers(ctx context.Context, roomID string) ([]string, error)
	GetOrCreatePrivateRoom(ctx context.Context, userID string) (string, error)
	NextSyncCursor(ctx context.Context) (string, error)
	PollNewMembers(ctx context.Context, roomID string) ([]string, error)
	PollCommands(ctx context.Context, roomID, token string) ([]command.Command, error)
	SendHelp(ctx context.Context, roomID string) error
}

// CommandHandler applies one parsed command to the subscription state.
type CommandHandler interface {
	HandleCommand(ctx context.Context, cmd command.Command) error
}

// Poller owns the session lifecycle.
type Poller struct {
	transport Transport
	handler   CommandHandler

	// errorInterval is the wait before restarting after a session failure.
	errorInterval time.Duration

	// privateRooms maps recipient user IDs onto their direct room IDs.
	privateRooms map[string]string
}

func New(transport Transport, handler CommandHandler, errorInterval time.Duration) *Poller {
	return &Poller{
		transport:     transport,
		handler:       handler,
		errorInterval: errorInterval,
		privateRooms:  make(map[string]string),
	}
}

// Run cycles sessions until ctx is cancelled. A disabled transport makes
// Run a no-op.
func (p *Poller) Run(ctx context.Context) error {
	if p.transport.Disabled() {
		log.Printf("poller: transport disabled, not polling")
		return nil
	}
	for {
		err := p.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("poller: session ended: %v, restarting in %s", err, p.errorInterval)
		if !sleepCtx(ctx, p.errorInterval) {
			return ctx.Err()
		}
	}
}

// session authenticates, bootstraps private rooms for everyone already in
// the public room and then polls until something fails.
func (p *Poller) session(ctx context.Context) error {
	if err := p.transport.Authenticate(ctx); err != nil {
		return err
	}
	defer func() {
		if err := p.transport.Logout(context.Background()); err != nil {
			log.Printf("poller: logout failed: %v", err)
		}
	}()

	p.privateRooms = make(map[string]string)
	publicRoom := p.transport.PublicRoomID()

	if publicRoom != "" {
		users, err := p.transport.RoomMembers(ctx, publicRoom)
		if err != nil {
			return err
		}
		for _, user := range users {
			if err := p.trackUser(ctx, user); err != nil {
				return err
			}
		}
	}

	for {
		token, err := p.transport.NextSyncCursor(ctx)
		if err != nil {
			return err
		}
		if err := p.pollOnce(ctx, publicRoom, token); err != nil {
			return err
		}
		if !sleepCtx(ctx, pollInterval) {
			return ctx.Err()
		}
	}
}

// pollOnce runs one round: pick up new public-room members, then drain
// commands from every private room and the public room.
func (p *Poller) pollOnce(ctx context.Context, publicRoom, token string) error {
	if publicRoom != "" {
		joined, err := p.transport.PollNewMembers(ctx, publicRoom)
		if err != nil {
			return err
		}
		for _, user := range joined {
			if err := p.trackUser(ctx, user); err != nil {
				return err
			}
		}
	}

	for _, roomID := range p.privateRooms {
		cmds, err := p.transport.PollCommands(ctx, roomID, "")
		if err != nil {
			return err
		}
		p.applyCommands(ctx, roomID, cmds)
	}

	if publicRoom != "" {
		cmds, err := p.transport.PollCommands(ctx, publicRoom, token)
		if err != nil {
			return err
		}
		p.applyCommands(ctx, publicRoom, cmds)
	}
	return nil
}

// applyCommands feeds a polled batch into the engine. One failing command
// is logged and skipped so the rest of the batch still applies.
func (p *Poller) applyCommands(ctx context.Context, roomID string, cmds []command.Command) {
	for _, cmd := range cmds {
		var err error
		if cmd.Kind == command.KindHelp {
			err = p.transport.SendHelp(ctx, roomID)
		} else {
			err = p.handler.HandleCommand(ctx, cmd)
		}
		if err != nil {
			log.Printf("poller: command %s from %s failed: %v", cmd.Kind, cmd.Sender, err)
		}
	}
}

// trackUser ensures a private room exists for a user and remembers it.
func (p *Poller) trackUser(ctx context.Context, user string) error {
	if _, ok := p.privateRooms[user]; ok {
		return nil
	}
	roomID, err := p.transport.GetOrCreatePrivateRoom(ctx, user)
	if err != nil {
		return err
	}
	p.privateRooms[user] = roomID
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
