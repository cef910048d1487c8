// Package streamController is a client for the stereo-streamer D-Bus
// service.
package streamController

import "github.com/godbus/dbus"

const (
	dbusPath   = "/org/cacophony/stereostreamer"
	dbusDest   = "org.cacophony.stereostreamer"
	methodBase = "org.cacophony.stereostreamer"
)

func getDbusObj() (dbus.BusObject, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	obj := conn.Object(dbusDest, dbusPath)
	return obj, nil
}

// Offer hands a viewer's SDP offer to the streamer and returns the
// session id and SDP answer.
func Offer(sdp string) (id string, answer string, err error) {
	obj, err := getDbusObj()
	if err != nil {
		return "", "", err
	}
	err = obj.Call(methodBase+".Offer", 0, sdp).Store(&id, &answer)
	return id, answer, err
}

func CloseSession(id string) error {
	obj, err := getDbusObj()
	if err != nil {
		return err
	}
	return obj.Call(methodBase+".CloseSession", 0, id).Store()
}

// RequestKeyframe returns false if the request was throttled.
func RequestKeyframe() (bool, error) {
	obj, err := getDbusObj()
	if err != nil {
		return false, err
	}
	var accepted bool
	err = obj.Call(methodBase+".RequestKeyframe", 0).Store(&accepted)
	return accepted, err
}

func GetStats() (map[string]uint64, error) {
	obj, err := getDbusObj()
	if err != nil {
		return nil, err
	}
	stats := map[string]uint64{}
	err = obj.Call(methodBase+".GetStats", 0).Store(&stats)
	return stats, err
}

// TakeSnapshot asks the streamer to save the latest frame as a PNG in
// its snapshot directory.
func TakeSnapshot() error {
	obj, err := getDbusObj()
	if err != nil {
		return err
	}
	return obj.Call(methodBase+".TakeSnapshot", 0).Store()
}
