package matrix

import (
	"context"
	"fmt"
	"net/url"

	"github.com/relayops/relaybot/internal/command"
)

// Cursor persistence: command polling for a room stores its token under the
// room ID, member polling under "members.<room>". The heartbeat cursor
// shares the public room's command key, so command polling keeps advancing
// it.

// NextSyncCursor returns the master incremental cursor that drives the
// polling loop. On the very first run it performs a full /sync and persists
// the returned batch token; afterwards the persisted cursor is reused.
func (c *Client) NextSyncCursor(ctx context.Context) (string, error) {
	token, err := c.cursors.Load(c.publicRoomID)
	if err != nil {
		return "", fmt.Errorf("loading sync cursor: %w", err)
	}
	if token != "" {
		return token, nil
	}

	if c.accessToken == "" {
		return "", ErrNotAuthenticated
	}
	var resp syncResponse
	if err := c.get(ctx, "/sync", c.authQuery(), &resp); err != nil {
		return "", fmt.Errorf("initial sync: %w", err)
	}
	if err := c.cursors.Save(c.publicRoomID, resp.NextBatch); err != nil {
		return "", err
	}
	return resp.NextBatch, nil
}

// PollCommands fetches text-message events for a room since the given
// token (or, when token is empty, since the persisted cursor), parses each
// body through the command grammar and advances the cursor. A nil slice
// simply means no new commands.
func (c *Client) PollCommands(ctx context.Context, roomID, token string) ([]command.Command, error) {
	if c.accessToken == "" {
		return nil, ErrNotAuthenticated
	}

	if token == "" {
		persisted, err := c.cursors.Load(roomID)
		if err != nil {
			return nil, err
		}
		token = persisted
	}

	resp, err := c.roomMessages(ctx, roomID, token, roomEventFilter{
		Types: []string{"m.room.message"},
		Rooms: []string{roomID},
	})
	if err != nil {
		return nil, fmt.Errorf("polling commands in %s: %w", roomID, err)
	}

	var cmds []command.Command
	for _, ev := range resp.Chunk {
		if ev.Content.MsgType != "m.text" {
			continue
		}
		if cmd, ok := command.Parse(ev.Content.Body, ev.Sender); ok {
			cmds = append(cmds, cmd)
		}
	}

	if err := c.cursors.Save(roomID, resp.nextToken()); err != nil {
		return nil, err
	}
	return cmds, nil
}

// PollNewMembers fetches membership events for a room since the persisted
// member cursor and returns the users newly observed joining, excluding the
// bot account. The cursor advances as a side effect.
func (c *Client) PollNewMembers(ctx context.Context, roomID string) ([]string, error) {
	if c.accessToken == "" {
		return nil, ErrNotAuthenticated
	}

	cursorKey := "members." + roomID
	token, err := c.cursors.Load(cursorKey)
	if err != nil {
		return nil, err
	}

	resp, err := c.roomMessages(ctx, roomID, token, roomEventFilter{
		Types: []string{"m.room.member"},
		Rooms: []string{roomID},
	})
	if err != nil {
		return nil, fmt.Errorf("polling members in %s: %w", roomID, err)
	}

	var joined []string
	for _, ev := range resp.Chunk {
		user := ev.subject()
		if ev.Content.Membership == "join" && user != c.cfg.BotUser && user != c.userID {
			joined = append(joined, user)
		}
	}

	if err := c.cursors.Save(cursorKey, resp.nextToken()); err != nil {
		return nil, err
	}
	return joined, nil
}

// roomMessages performs one incremental /messages fetch with an event
// filter. An empty token asks for the room's backlog from the server's
// default starting point.
func (c *Client) roomMessages(ctx context.Context, roomID, token string, filter roomEventFilter) (roomEventsResponse, error) {
	endpoint := "/rooms/" + url.PathEscape(roomID) + "/messages"
	q := c.authQuery()
	q.Set("filter", filter.encode())
	if token != "" {
		q.Set("from", token)
	}

	var resp roomEventsResponse
	if err := c.get(ctx, endpoint, q, &resp); err != nil {
		return roomEventsResponse{}, err
	}
	return resp, nil
}
