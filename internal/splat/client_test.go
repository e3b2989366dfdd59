package splat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/parallax-robotics/splatview/internal/render"
	"gonum.org/v1/gonum/num/quat"
)

// fakeBackend serves the splat wire protocol over a single websocket.
// knownObjects drives the set_transform warning path; width/height the
// render response shape.
type fakeBackend struct {
	knownObjects map[string]bool
	width        int
	height       int
	truncate     bool // reply with too few pixel bytes
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		var req wireRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		var resp wireResponse
		switch req.Type {
		case msgSetTransform:
			resp.OK = true
			if !b.knownObjects[req.ID] {
				resp.Warning = "unknown object"
			}
		case msgRender:
			resp.OK = true
			resp.Width, resp.Height = b.width, b.height
			n := b.width * b.height * 3
			if b.truncate {
				n /= 2
			}
			resp.Pixels = make([]byte, n)
			for i := range resp.Pixels {
				resp.Pixels[i] = 90
			}
		default:
			resp.Error = "unsupported request"
		}
		if err := conn.WriteJSON(&resp); err != nil {
			return
		}
	}
}

func dialFake(t *testing.T, b *fakeBackend) *Client {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	cfg := ClientConfig{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		RequestTimeout: 5 * time.Second,
	}
	c, err := Dial(cfg)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientSetTransform(t *testing.T) {
	c := dialFake(t, &fakeBackend{knownObjects: map[string]bool{"splat/cup": true}, width: 4, height: 4})
	pose := render.IdentityPose()
	if err := c.SetObjectTransform("splat/cup", pose); err != nil {
		t.Fatalf("SetObjectTransform: %v", err)
	}
}

func TestClientUnknownObjectWarning(t *testing.T) {
	c := dialFake(t, &fakeBackend{knownObjects: map[string]bool{}, width: 4, height: 4})
	err := c.SetObjectTransform("splat/ghost", render.IdentityPose())
	if !errors.Is(err, render.ErrUnknownObject) {
		t.Fatalf("err = %v, want ErrUnknownObject", err)
	}
}

func TestClientRender(t *testing.T) {
	c := dialFake(t, &fakeBackend{width: 6, height: 5})
	layer, err := c.Render(context.Background(), render.Pose{Orientation: quat.Number{Real: 1}})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if layer.Width != 6 || layer.Height != 5 {
		t.Fatalf("dimensions %dx%d, want 6x5", layer.Width, layer.Height)
	}
	r, g, bl := layer.At(2, 2)
	if r != 90 || g != 90 || bl != 90 {
		t.Fatalf("pixel = (%d,%d,%d), want (90,90,90)", r, g, bl)
	}
}

func TestClientRejectsMalformedFrame(t *testing.T) {
	c := dialFake(t, &fakeBackend{width: 6, height: 5, truncate: true})
	if _, err := c.Render(context.Background(), render.Pose{Orientation: quat.Number{Real: 1}}); err == nil {
		t.Fatalf("expected error for truncated pixel payload")
	}
}

func TestClientRenderCancelled(t *testing.T) {
	c := dialFake(t, &fakeBackend{width: 4, height: 4})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Render(ctx, render.IdentityPose()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
