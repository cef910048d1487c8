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
	"errors"
	"time"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"

	"github.com/TheCacophonyProject/stereo-streamer/signaling"
)

const (
	dbusName = "org.cacophony.stereostreamer"
	dbusPath = "/org/cacophony/stereostreamer"

	offerTimeout = 10 * time.Second
)

type service struct {
	sessions  signaling.Offerer
	stats     func() map[string]uint64
	snapshots *snapshotter
}

func startService(s *service) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// Offer answers a viewer's SDP offer, returning the session id and the
// answer.
func (s *service) Offer(sdp string) (string, string, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), offerTimeout)
	defer cancel()
	id, answer, err := s.sessions.Offer(ctx, sdp)
	if err != nil {
		return "", "", makeDbusError("Offer", err)
	}
	return id, answer, nil
}

func (s *service) CloseSession(id string) *dbus.Error {
	if err := s.sessions.Close(id); err != nil {
		return makeDbusError("CloseSession", err)
	}
	return nil
}

// RequestKeyframe returns false when the request was throttled.
func (s *service) RequestKeyframe() (bool, *dbus.Error) {
	return s.sessions.RequestKeyframe(), nil
}

func (s *service) GetStats() (map[string]uint64, *dbus.Error) {
	return s.stats(), nil
}

// TakeSnapshot will save the latest frame as a still
func (s *service) TakeSnapshot() *dbus.Error {
	if err := s.snapshots.take(); err != nil {
		return makeDbusError("TakeSnapshot", err)
	}
	return nil
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + "." + name,
		Body: []interface{}{err.Error()},
	}
}
