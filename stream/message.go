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

package stream

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/TheCacophonyProject/stereo-streamer/codec"
)

// MessageHeaderSize is the size of the header in front of each access
// unit sent over a data channel: a key flag byte then the timestamp in
// microseconds, big endian.
const MessageHeaderSize = 9

var ErrShortMessage = errors.New("data channel message too short")

// MarshalMessage frames an access unit for a data channel.
func MarshalMessage(au codec.AccessUnit) []byte {
	msg := make([]byte, MessageHeaderSize+len(au.Data))
	if au.Key {
		msg[0] = 1
	}
	binary.BigEndian.PutUint64(msg[1:MessageHeaderSize], uint64(au.PTS/time.Microsecond))
	copy(msg[MessageHeaderSize:], au.Data)
	return msg
}

// UnmarshalMessage reverses MarshalMessage. The returned data aliases
// msg.
func UnmarshalMessage(msg []byte) (codec.AccessUnit, error) {
	if len(msg) < MessageHeaderSize {
		return codec.AccessUnit{}, ErrShortMessage
	}
	return codec.AccessUnit{
		Key:  msg[0] != 0,
		PTS:  time.Duration(binary.BigEndian.Uint64(msg[1:MessageHeaderSize])) * time.Microsecond,
		Data: msg[MessageHeaderSize:],
	}, nil
}
