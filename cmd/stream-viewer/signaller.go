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

package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/TheCacophonyProject/stereo-streamer/signaling"
	"github.com/TheCacophonyProject/stereo-streamer/streamController"
)

// signaller carries the offer to the streamer.
type signaller interface {
	Offer(ctx context.Context, sdp string) (id string, answer string, err error)
	Close(ctx context.Context, id string) error
}

// newSignaller picks a signaller for target: "dbus" for the local
// D-Bus service, an http(s) URL for plain requests or a ws(s) URL for a
// websocket.
func newSignaller(ctx context.Context, target string) (signaller, error) {
	if target == "dbus" {
		return dbusSignaller{}, nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https":
		return signaling.NewClient(target), nil
	case "ws", "wss":
		conn, err := signaling.Dial(ctx, target)
		if err != nil {
			return nil, err
		}
		return &wsSignaller{conn}, nil
	}
	return nil, fmt.Errorf("can't signal to %q", target)
}

type dbusSignaller struct{}

func (dbusSignaller) Offer(ctx context.Context, sdp string) (string, string, error) {
	return streamController.Offer(sdp)
}

func (dbusSignaller) Close(ctx context.Context, id string) error {
	return streamController.CloseSession(id)
}

type wsSignaller struct {
	conn *signaling.Conn
}

func (s *wsSignaller) Offer(ctx context.Context, sdp string) (string, string, error) {
	return s.conn.Offer(sdp)
}

// Close also drops the socket, which the server takes as the end of
// every session opened over it.
func (s *wsSignaller) Close(ctx context.Context, id string) error {
	s.conn.CloseSession(id)
	return s.conn.Close()
}
