package matrix

import "encoding/json"

// Wire types for the Matrix client-server r0 API. Only the fields relaybot
// reads are declared; everything else in a response is ignored.

type loginRequest struct {
	Type     string `json:"type"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	HomeServer  string `json:"home_server"`
	DeviceID    string `json:"device_id"`
}

type createRoomRequest struct {
	Name          string   `json:"name"`
	RoomAliasName string   `json:"room_alias_name"`
	Topic         string   `json:"topic"`
	Preset        string   `json:"preset"`
	Invite        []string `json:"invite"`
	IsDirect      bool     `json:"is_direct"`
}

type roomResponse struct {
	RoomID    string `json:"room_id"`
	RoomAlias string `json:"room_alias"`
}

type joinedRoomsResponse struct {
	JoinedRooms []string `json:"joined_rooms"`
}

type syncResponse struct {
	NextBatch string `json:"next_batch"`
}

// FileInfo describes an attachment sent with a file message.
type FileInfo struct {
	MimeType string `json:"mimetype,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

type sendMessageRequest struct {
	MsgType       string    `json:"msgtype"`
	Body          string    `json:"body"`
	Format        string    `json:"format,omitempty"`
	FormattedBody string    `json:"formatted_body,omitempty"`
	URL           string    `json:"url,omitempty"`
	Info          *FileInfo `json:"info,omitempty"`
}

// textMessage builds an m.text request, with the HTML variant attached
// when a formatted body is given.
func textMessage(body, formatted string) sendMessageRequest {
	req := sendMessageRequest{
		MsgType: "m.text",
		Body:    body,
	}
	if formatted != "" {
		req.Format = "org.matrix.custom.html"
		req.FormattedBody = formatted
	}
	return req
}

// fileMessage builds an m.file request pointing at an uploaded content URI.
func fileMessage(filename, uri string, info *FileInfo) sendMessageRequest {
	return sendMessageRequest{
		MsgType: "m.file",
		Body:    filename,
		URL:     uri,
		Info:    info,
	}
}

type sendMessageResponse struct {
	EventID string `json:"event_id"`
}

type uploadResponse struct {
	ContentURI string `json:"content_uri"`
}

type eventContent struct {
	Body        string `json:"body"`
	MsgType     string `json:"msgtype"`
	DisplayName string `json:"displayname"`
	Membership  string `json:"membership"`
}

type clientEvent struct {
	Content  eventContent `json:"content"`
	RoomID   string       `json:"room_id"`
	Sender   string       `json:"sender"`
	Type     string       `json:"type"`
	EventID  string       `json:"event_id"`
	UserID   string       `json:"user_id"`
	StateKey string       `json:"state_key"`
}

// subject returns the user an event is about: the state key for membership
// events, else the sender. Older servers fill user_id instead.
func (e clientEvent) subject() string {
	if e.StateKey != "" {
		return e.StateKey
	}
	if e.UserID != "" {
		return e.UserID
	}
	return e.Sender
}

type roomEventsResponse struct {
	Chunk []clientEvent `json:"chunk"`
	Start string        `json:"start"`
	End   string        `json:"end"`
}

// nextToken picks the cursor to persist after a poll: the end token when
// the server returned one, otherwise the start token.
func (r roomEventsResponse) nextToken() string {
	if r.End == "" {
		return r.Start
	}
	return r.End
}

type roomEventFilter struct {
	Types []string `json:"types"`
	Rooms []string `json:"rooms"`
}

func (f roomEventFilter) encode() string {
	data, _ := json.Marshal(f)
	return string(data)
}

type errorResponse struct {
	ErrCode string `json:"errcode"`
	Error   string `json:"error"`
}
