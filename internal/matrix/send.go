package matrix

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// rateLimitBackoff is the fixed wait before retrying a rate-limited send.
const rateLimitBackoff = 5 * time.Second

// dispatch sends one message event to a room. Rate-limited attempts are
// retried after the fixed backoff for as long as the server keeps
// answering 429; the transaction ID stays constant across retries so the
// server can de-duplicate. Any other failure surfaces immediately.
func (c *Client) dispatch(ctx context.Context, roomID string, req sendMessageRequest) (string, error) {
	if c.cfg.Disabled {
		return "", nil
	}
	if c.accessToken == "" {
		return "", ErrNotAuthenticated
	}

	txnID := uuid.NewString()
	endpoint := "/rooms/" + url.PathEscape(roomID) + "/send/m.room.message/" + txnID
	for {
		var resp sendMessageResponse
		err := c.put(ctx, endpoint, c.authQuery(), req, &resp)
		if err == nil {
			log.Printf("matrix: message dispatched to room %s (event_id: %s)", roomID, resp.EventID)
			return resp.EventID, nil
		}
		if !isRateLimited(err) {
			return "", fmt.Errorf("dispatching to room %s: %w", roomID, err)
		}
		log.Printf("matrix: rate limited (%v), waiting %s before retrying", err, rateLimitBackoff)
		if !sleepCtx(ctx, rateLimitBackoff) {
			return "", ctx.Err()
		}
	}
}

// SendRoomMessage sends a text message (with optional HTML variant) to an
// already resolved room.
func (c *Client) SendRoomMessage(ctx context.Context, roomID, message, formatted string) error {
	if c.cfg.Disabled {
		return nil
	}
	_, err := c.dispatch(ctx, roomID, textMessage(message, formatted))
	return err
}

// SendPrivateMessage delivers a message to a user's private room, creating
// the room on first contact.
func (c *Client) SendPrivateMessage(ctx context.Context, userID, message, formatted string) error {
	if c.cfg.Disabled {
		return nil
	}
	roomID, err := c.GetOrCreatePrivateRoom(ctx, userID)
	if err != nil {
		return err
	}
	_, err = c.dispatch(ctx, roomID, textMessage(message, formatted))
	return err
}

// SendPublicMessage broadcasts to the configured public room. A disabled
// public room makes this a no-op.
func (c *Client) SendPublicMessage(ctx context.Context, message, formatted string) error {
	if c.cfg.Disabled || c.cfg.PublicRoomDisabled {
		return nil
	}
	_, err := c.dispatch(ctx, c.publicRoomID, textMessage(message, formatted))
	return err
}

// SendCalloutMessage broadcasts to every configured callout room.
func (c *Client) SendCalloutMessage(ctx context.Context, message, formatted string) error {
	if c.cfg.Disabled || c.cfg.PublicRoomDisabled {
		return nil
	}
	for _, roomID := range c.calloutRoomIDs {
		if _, err := c.dispatch(ctx, roomID, textMessage(message, formatted)); err != nil {
			return err
		}
	}
	return nil
}

// SendPrivateFile delivers a file attachment to a user's private room.
func (c *Client) SendPrivateFile(ctx context.Context, userID, filename, uri string, info *FileInfo) error {
	if c.cfg.Disabled {
		return nil
	}
	roomID, err := c.GetOrCreatePrivateRoom(ctx, userID)
	if err != nil {
		return err
	}
	_, err = c.dispatch(ctx, roomID, fileMessage(filename, uri, info))
	return err
}

// mediaBaseURL derives the media repository base from the client API base,
// e.g. .../_matrix/client/r0 -> .../_matrix/media/r0.
func (c *Client) mediaBaseURL() string {
	return strings.Replace(c.baseURL, "/_matrix/client/", "/_matrix/media/", 1)
}

// UploadFile pushes a local file into the media repository and returns the
// content URI that file messages reference.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	if c.cfg.Disabled {
		return "", nil
	}
	if c.accessToken == "" {
		return "", ErrNotAuthenticated
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	q := c.authQuery()
	q.Set("filename", filepath.Base(path))
	endpoint := c.mediaBaseURL() + "/upload?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, f)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		var apiErr errorResponse
		_ = json.NewDecoder(res.Body).Decode(&apiErr)
		return "", &APIError{StatusCode: res.StatusCode, Code: apiErr.ErrCode, Message: apiErr.Error}
	}

	var resp uploadResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	log.Printf("matrix: %s uploaded (uri: %s)", filepath.Base(path), resp.ContentURI)
	return resp.ContentURI, nil
}

// SendHelp posts the command usage message into a room.
func (c *Client) SendHelp(ctx context.Context, roomID string) error {
	msg := c.helpMessage()
	return c.SendRoomMessage(ctx, roomID, msg, msg)
}

func (c *Client) helpMessage() string {
	var b strings.Builder
	b.WriteString("✨ Supported commands:<br>")
	b.WriteString("<b>!subscribe alerts [MUTE_INTERVAL]</b> - Subscribe to alerts from all members. The parameter MUTE_INTERVAL is optional and is defined in minutes, e.g 10.<br>")
	b.WriteString("<b>!subscribe alerts <i>MEMBER</i> [MUTE_INTERVAL]</b> - Subscribe to alerts by MEMBER.<br>")
	b.WriteString("<b>!subscribe alerts <i>MEMBER</i> <i>SEVERITY</i> [MUTE_INTERVAL]</b> - Subscribe to alerts by MEMBER and SEVERITY. The parameter SEVERITY must match one of the options: [high, medium, low].<br>")
	b.WriteString("<b>!unsubscribe alerts</b> - Unsubscribe to all alerts.<br>")
	b.WriteString("<b>!unsubscribe alerts <i>MEMBER</i></b> - Unsubscribe to alerts by MEMBER.<br>")
	b.WriteString("<b>!unsubscribe alerts <i>MEMBER</i> <i>SEVERITY</i></b> - Unsubscribe to alerts by MEMBER and SEVERITY.<br>")
	b.WriteString("<b>!help</b> - Print this message.<br>")
	b.WriteString("——<br>")
	fmt.Fprintf(&b, "<code>relaybot v%s</code><br>", c.version)
	return b.String()
}
