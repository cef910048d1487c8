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
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/stereo-streamer/stream"
)

type fakeOfferer struct {
	mu        sync.Mutex
	next      int
	open      map[string]bool
	offerErr  error
	throttled bool
	keyframes int
}

func newFakeOfferer() *fakeOfferer {
	return &fakeOfferer{open: make(map[string]bool)}
}

func (o *fakeOfferer) Offer(ctx context.Context, sdp string) (string, string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.offerErr != nil {
		return "", "", o.offerErr
	}
	o.next++
	id := fmt.Sprintf("session-%d", o.next)
	o.open[id] = true
	return id, "answer to " + sdp, nil
}

func (o *fakeOfferer) Close(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.open[id] {
		return stream.ErrUnknownSession
	}
	delete(o.open, id)
	return nil
}

func (o *fakeOfferer) RequestKeyframe() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.throttled {
		return false
	}
	o.keyframes++
	return true
}

func (o *fakeOfferer) set(f func(o *fakeOfferer)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f(o)
}

func (o *fakeOfferer) keyframeCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.keyframes
}

func (o *fakeOfferer) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.open)
}

func newTestServer(t *testing.T) (*fakeOfferer, *httptest.Server) {
	o := newFakeOfferer()
	srv := httptest.NewServer(NewServer(o, time.Second))
	t.Cleanup(srv.Close)
	return o, srv
}

func TestHTTPOfferAndClose(t *testing.T) {
	o, srv := newTestServer(t)
	c := NewClient(srv.URL + "/")
	ctx := context.Background()

	id, answer, err := c.Offer(ctx, "v=0")
	require.NoError(t, err)
	assert.Equal(t, "session-1", id)
	assert.Equal(t, "answer to v=0", answer)
	assert.Equal(t, 1, o.openCount())

	require.NoError(t, c.RequestKeyframe(ctx))
	assert.Equal(t, 1, o.keyframeCount())

	require.NoError(t, c.Close(ctx, id))
	assert.Equal(t, 0, o.openCount())
	err = c.Close(ctx, id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestHTTPOfferErrors(t *testing.T) {
	o, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/offer")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/offer", "application/json", strings.NewReader(`{"type":"answer","sdp":"x"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/offer", "application/json", strings.NewReader(`not json`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	o.set(func(o *fakeOfferer) { o.offerErr = errors.New("no camera") })
	_, _, err = NewClient(srv.URL).Offer(context.Background(), "v=0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no camera")
}

func TestHTTPKeyframeThrottled(t *testing.T) {
	o, srv := newTestServer(t)
	o.set(func(o *fakeOfferer) { o.throttled = true })
	err := NewClient(srv.URL).RequestKeyframe(context.Background())
	assert.Equal(t, ErrThrottled, err)
}

func TestPreflight(t *testing.T) {
	_, srv := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/offer", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestWebsocketSession(t *testing.T) {
	o, srv := newTestServer(t)
	conn, err := Dial(context.Background(), wsURL(srv))
	require.NoError(t, err)

	id, answer, err := conn.Offer("v=0")
	require.NoError(t, err)
	assert.Equal(t, "session-1", id)
	assert.Equal(t, "answer to v=0", answer)

	require.NoError(t, conn.RequestKeyframe())
	_, _, err = conn.Offer("v=1")
	require.NoError(t, err)
	assert.Equal(t, 2, o.openCount())

	require.NoError(t, conn.CloseSession(id))
	assert.Eventually(t, func() bool { return o.openCount() == 1 }, time.Second, 5*time.Millisecond)

	// Dropping the socket ends what is left.
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return o.openCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWebsocketOfferRejected(t *testing.T) {
	o, srv := newTestServer(t)
	o.set(func(o *fakeOfferer) { o.offerErr = errors.New("no camera") })
	conn, err := Dial(context.Background(), wsURL(srv))
	require.NoError(t, err)
	defer conn.Close()

	_, _, err = conn.Offer("v=0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no camera")
}
