// Package matrix maintains the authenticated session against the chat
// transport: login, room discovery and creation, member listing,
// incremental polling with persisted sync cursors, and message dispatch
// with rate-limit-aware retry.
package matrix

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/relayops/relaybot/internal/checkpoint"
	"github.com/relayops/relaybot/internal/config"
)

const botDisplayName = "RELAY ALERTS"

// ErrNotAuthenticated is returned by any transport call made before
// Authenticate has succeeded. Callers retry by restarting the session, not
// by retrying the individual call.
var ErrNotAuthenticated = errors.New("matrix: not authenticated")

// Client owns one authenticated session against the homeserver.
type Client struct {
	http    *http.Client
	baseURL string
	cfg     config.MatrixConfig
	cursors checkpoint.Store
	version string

	accessToken    string
	userID         string
	publicRoomID   string
	calloutRoomIDs []string
}

// New builds an unauthenticated client. version shows up in the help reply.
func New(cfg config.MatrixConfig, cursors checkpoint.Store, version string) *Client {
	return &Client{
		http:           &http.Client{Timeout: 30 * time.Second},
		baseURL:        strings.TrimRight(cfg.HomeserverURL, "/"),
		cfg:            cfg,
		cursors:        cursors,
		version:        version,
		calloutRoomIDs: cfg.CalloutRooms,
	}
}

// Disabled reports whether the transport is configured as a no-op.
func (c *Client) Disabled() bool { return c.cfg.Disabled }

// PublicRoomID is the resolved room the bot listens on. Empty until
// Authenticate succeeds (or when public-room participation is disabled).
func (c *Client) PublicRoomID() string { return c.publicRoomID }

func (c *Client) publicRoomAlias() string {
	return "#" + c.cfg.PublicRoom
}

// Authenticate logs the bot in and joins the configured public room unless
// public-room participation is disabled. Any failure is fatal for the
// session attempt; the polling loop restarts from scratch.
func (c *Client) Authenticate(ctx context.Context) error {
	if c.cfg.Disabled {
		return nil
	}
	if !strings.Contains(c.cfg.BotUser, ":") {
		return fmt.Errorf("matrix bot user %q does not specify the matrix server, e.g. '@your-own-bot-account:matrix.org'", c.cfg.BotUser)
	}

	if err := c.login(ctx); err != nil {
		return err
	}

	if !c.cfg.PublicRoomDisabled {
		roomID, err := c.roomIDByAlias(ctx, c.publicRoomAlias())
		if err != nil {
			return err
		}
		if roomID == "" {
			return fmt.Errorf("public room %s not found", c.publicRoomAlias())
		}
		joined, err := c.joinedRooms(ctx)
		if err != nil {
			return err
		}
		if !contains(joined, roomID) {
			if err := c.joinRoom(ctx, roomID); err != nil {
				return err
			}
		}
		c.publicRoomID = roomID
		log.Printf("matrix: messages will be sent to public room %s", c.publicRoomAlias())
	}
	return nil
}

func (c *Client) login(ctx context.Context) error {
	req := loginRequest{
		Type:     "m.login.password",
		User:     c.cfg.BotUser,
		Password: c.cfg.BotPassword,
	}
	var resp loginResponse
	if err := c.post(ctx, "/login", nil, req, &resp); err != nil {
		return fmt.Errorf("matrix login: %w", err)
	}
	c.accessToken = resp.AccessToken
	c.userID = resp.UserID
	log.Printf("matrix: the '%s' bot user %s has been authenticated at %s",
		botDisplayName, resp.UserID, resp.HomeServer)
	return nil
}

// Logout invalidates the current access token.
func (c *Client) Logout(ctx context.Context) error {
	if c.cfg.Disabled {
		return nil
	}
	if c.accessToken == "" {
		return ErrNotAuthenticated
	}
	if err := c.post(ctx, "/logout", c.authQuery(), struct{}{}, &struct{}{}); err != nil {
		return err
	}
	c.accessToken = ""
	return nil
}

// privateRoomAlias derives the deterministic alias for the direct room
// between a user and the bot: a reversible base64 encoding of
// "relaybot/<user>/<bot>", qualified with the bot's server. The same user
// always maps to the same alias, which makes room creation idempotent.
func (c *Client) privateRoomAlias(userID string) (aliasName, alias string) {
	aliasName = base64.StdEncoding.EncodeToString(
		[]byte(fmt.Sprintf("relaybot/%s/%s", userID, c.cfg.BotUser)))
	parts := strings.Split(c.cfg.BotUser, ":")
	server := parts[len(parts)-1]
	return aliasName, fmt.Sprintf("#%s:%s", aliasName, server)
}

// GetOrCreatePrivateRoom resolves the invite-only direct room for a user,
// creating it (and sending the help message into it) on first contact.
func (c *Client) GetOrCreatePrivateRoom(ctx context.Context, userID string) (string, error) {
	if c.accessToken == "" {
		return "", ErrNotAuthenticated
	}
	aliasName, alias := c.privateRoomAlias(userID)

	roomID, err := c.roomIDByAlias(ctx, alias)
	if err != nil {
		return "", err
	}
	if roomID != "" {
		return roomID, nil
	}

	req := createRoomRequest{
		Name:          fmt.Sprintf("%s Bot (Private)", botDisplayName),
		RoomAliasName: aliasName,
		Topic:         fmt.Sprintf("%s Bot", botDisplayName),
		Preset:        "trusted_private_chat",
		Invite:        []string{userID},
		IsDirect:      true,
	}
	var resp roomResponse
	if err := c.post(ctx, "/createRoom", c.authQuery(), req, &resp); err != nil {
		return "", fmt.Errorf("creating private room for %s: %w", userID, err)
	}
	log.Printf("matrix: %s private room alias created", alias)

	if err := c.SendHelp(ctx, resp.RoomID); err != nil {
		return "", err
	}
	return resp.RoomID, nil
}

// roomIDByAlias resolves an alias through the room directory. A missing
// alias returns ("", nil).
func (c *Client) roomIDByAlias(ctx context.Context, alias string) (string, error) {
	endpoint := "/directory/room/" + url.PathEscape(alias)
	var resp roomResponse
	err := c.get(ctx, endpoint, nil, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return "", nil
		}
		return "", fmt.Errorf("resolving room alias %s: %w", alias, err)
	}
	return resp.RoomID, nil
}

func (c *Client) joinedRooms(ctx context.Context) ([]string, error) {
	var resp joinedRoomsResponse
	if err := c.get(ctx, "/joined_rooms", c.authQuery(), &resp); err != nil {
		return nil, fmt.Errorf("listing joined rooms: %w", err)
	}
	return resp.JoinedRooms, nil
}

// joinRoom joins a room, retrying after the fixed backoff for as long as
// the server keeps rate-limiting.
func (c *Client) joinRoom(ctx context.Context, roomID string) error {
	endpoint := "/join/" + url.PathEscape(roomID)
	for {
		var resp roomResponse
		err := c.post(ctx, endpoint, c.authQuery(), struct{}{}, &resp)
		if err == nil {
			log.Printf("matrix: the room %s has been joined", resp.RoomID)
			return nil
		}
		if !isRateLimited(err) {
			return fmt.Errorf("joining room %s: %w", roomID, err)
		}
		log.Printf("matrix: rate limited joining %s, waiting %s before retrying", roomID, rateLimitBackoff)
		if !sleepCtx(ctx, rateLimitBackoff) {
			return ctx.Err()
		}
	}
}

// RoomMembers returns the de-duplicated set of joined users in a room,
// excluding the bot account itself.
func (c *Client) RoomMembers(ctx context.Context, roomID string) ([]string, error) {
	if c.accessToken == "" {
		return nil, ErrNotAuthenticated
	}
	endpoint := "/rooms/" + url.PathEscape(roomID) + "/members"
	q := c.authQuery()
	q.Set("membership", "join")

	var resp roomEventsResponse
	if err := c.get(ctx, endpoint, q, &resp); err != nil {
		return nil, fmt.Errorf("listing members of %s: %w", roomID, err)
	}

	seen := make(map[string]bool)
	var members []string
	for _, ev := range resp.Chunk {
		user := ev.subject()
		if ev.Content.Membership != "join" || user == c.cfg.BotUser || user == c.userID {
			continue
		}
		if !seen[user] {
			seen[user] = true
			members = append(members, user)
		}
	}
	return members, nil
}

// authQuery returns the query values carrying the access token.
func (c *Client) authQuery() url.Values {
	q := url.Values{}
	q.Set("access_token", c.accessToken)
	return q
}

// APIError is a non-2xx response from the homeserver.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("matrix: unexpected status %d", e.StatusCode)
}

func isRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, endpoint, query, nil, out)
}

func (c *Client) post(ctx context.Context, endpoint string, query url.Values, body, out any) error {
	return c.do(ctx, http.MethodPost, endpoint, query, body, out)
}

func (c *Client) put(ctx context.Context, endpoint string, query url.Values, body, out any) error {
	return c.do(ctx, http.MethodPut, endpoint, query, body, out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body, out any) error {
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		var apiErr errorResponse
		_ = json.NewDecoder(res.Body).Decode(&apiErr)
		return &APIError{
			StatusCode: res.StatusCode,
			Code:       apiErr.ErrCode,
			Message:    apiErr.Error,
		}
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

// sleepCtx sleeps for d unless ctx ends first; it reports whether the full
// sleep completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
