// stereo-streamer - stream live stereo video to a remote viewer
//  Copyright (C) 2026, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var ErrThrottled = errors.New("signaling: keyframe request throttled")

// Client talks to a Server over plain HTTP.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: http.DefaultClient,
	}
}

// Offer sends an SDP offer and returns the session id and answer.
func (c *Client) Offer(ctx context.Context, sdp string) (id string, answer string, err error) {
	reply, err := c.do(ctx, http.MethodPost, "/offer", &Message{Type: TypeOffer, SDP: sdp})
	if err != nil {
		return "", "", err
	}
	if reply.Type != TypeAnswer {
		return "", "", fmt.Errorf("signaling: expected an answer, got %q", reply.Type)
	}
	return reply.ID, reply.SDP, nil
}

func (c *Client) RequestKeyframe(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/keyframe", nil)
	return err
}

func (c *Client) Close(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/session?id="+url.QueryEscape(id), nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, msg *Message) (*Message, error) {
	var body io.Reader
	if msg != nil {
		buf, err := json.Marshal(msg)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var reply Message
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMessageSize)).Decode(&reply); err != nil {
		return nil, fmt.Errorf("signaling: bad reply (%s): %w", resp.Status, err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrThrottled
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("signaling: %s: %s", resp.Status, reply.Error)
	}
	return &reply, nil
}

// Conn is a websocket connection to a Server. Sessions opened over it
// end when it is closed. It is not safe for concurrent use.
type Conn struct {
	conn net.Conn
	rw   io.ReadWriter
}

type readWriter struct {
	io.Reader
	io.Writer
}

// Dial opens a websocket, for example to ws://host:8080/ws.
func Dial(ctx context.Context, u string) (*Conn, error) {
	conn, br, _, err := ws.Dial(ctx, u)
	if err != nil {
		return nil, err
	}
	var r io.Reader = conn
	if br != nil {
		// The handshake read ahead into br.
		r = io.MultiReader(br, conn)
	}
	return &Conn{conn: conn, rw: readWriter{r, conn}}, nil
}

// Offer sends an SDP offer and waits for the answer.
func (c *Conn) Offer(sdp string) (id string, answer string, err error) {
	if err := c.send(Message{Type: TypeOffer, SDP: sdp}); err != nil {
		return "", "", err
	}
	reply, err := c.receive()
	if err != nil {
		return "", "", err
	}
	if reply.Type != TypeAnswer {
		return "", "", fmt.Errorf("signaling: offer rejected: %s", reply.Error)
	}
	return reply.ID, reply.SDP, nil
}

// RequestKeyframe does not wait for a reply; throttled requests are
// answered with an error message that the next receive will see.
func (c *Conn) RequestKeyframe() error {
	return c.send(Message{Type: TypeKeyframe})
}

// CloseSession ends one session but keeps the socket open.
func (c *Conn) CloseSession(id string) error {
	return c.send(Message{Type: TypeClose, ID: id})
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) send(msg Message) error {
	buf, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return wsutil.WriteClientText(c.conn, buf)
}

func (c *Conn) receive() (*Message, error) {
	for {
		data, err := wsutil.ReadServerText(c.rw)
		if err != nil {
			return nil, err
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		// Skip stale keyframe throttle notices.
		if msg.Type == TypeError && msg.ID == "" && strings.Contains(msg.Error, "throttled") {
			continue
		}
		return &msg, nil
	}
}
