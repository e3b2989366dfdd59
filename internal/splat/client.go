package splat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/parallax-robotics/splatview/internal/render"
)

// Wire message types for the splat backend protocol. The backend is a
// websocket service speaking JSON; requests and responses alternate in lock
// step on one connection.
const (
	msgSetTransform = "set_transform"
	msgRender       = "render"
)

// wirePose is the JSON encoding of a pose: position xyz, orientation wxyz.
type wirePose struct {
	Position    [3]float64 `json:"position"`
	Orientation [4]float64 `json:"orientation"`
}

func toWirePose(p render.Pose) wirePose {
	return wirePose{
		Position:    [3]float64{p.Position.X, p.Position.Y, p.Position.Z},
		Orientation: [4]float64{p.Orientation.Real, p.Orientation.Imag, p.Orientation.Jmag, p.Orientation.Kmag},
	}
}

type wireRequest struct {
	Type   string    `json:"type"`
	ID     string    `json:"id,omitempty"`
	Pose   *wirePose `json:"pose,omitempty"`
	Camera *wirePose `json:"camera,omitempty"`
}

type wireResponse struct {
	OK      bool   `json:"ok"`
	Warning string `json:"warning,omitempty"`
	Error   string `json:"error,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Pixels  []byte `json:"pixels,omitempty"` // RGB bytes, base64 on the wire
}

// ClientConfig holds connection settings for the splat backend.
type ClientConfig struct {
	URL string `json:"url"`
	// RequestTimeout bounds each request/response round trip.
	RequestTimeout time.Duration `json:"request_timeout"`
}

// DefaultClientConfig returns conservative defaults for a local backend.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		URL:            "ws://localhost:8290/render",
		RequestTimeout: 30 * time.Second,
	}
}

// Client is a SplatRenderer backed by a remote websocket rendering service.
// One connection carries one request/response exchange at a time; the mutex
// serializes callers because websocket connections are not concurrency-safe.
type Client struct {
	cfg  ClientConfig
	mu   sync.Mutex
	conn *websocket.Conn
}

// Dial connects to the splat backend.
func Dial(cfg ClientConfig) (*Client, error) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	conn, _, err := websocket.DefaultDialer.Dial(cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial splat backend %s: %w", cfg.URL, err)
	}
	return &Client{cfg: cfg, conn: conn}, nil
}

// Close shuts the connection down cleanly.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// roundTrip sends one request and reads its response under the lock.
func (c *Client) roundTrip(req wireRequest) (*wireResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.cfg.RequestTimeout)
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("write %s: %w", req.Type, err)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	var resp wireResponse
	if err := c.conn.ReadJSON(&resp); err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.Type, err)
	}
	return &resp, nil
}

// SetObjectTransform pushes one object pose to the backend. A backend
// warning (unknown object) maps to render.ErrUnknownObject so the
// synchronizer treats it as a local, recoverable condition.
func (c *Client) SetObjectTransform(id render.ObjectIdentity, pose render.Pose) error {
	wp := toWirePose(pose)
	resp, err := c.roundTrip(wireRequest{Type: msgSetTransform, ID: string(id), Pose: &wp})
	if err != nil {
		return err
	}
	if resp.Warning != "" {
		return fmt.Errorf("%w: %q: %s", render.ErrUnknownObject, id, resp.Warning)
	}
	if !resp.OK {
		return fmt.Errorf("set_transform %q: backend error: %s", id, resp.Error)
	}
	return nil
}

// Render requests the photorealistic background for the given camera pose.
func (c *Client) Render(ctx context.Context, camera render.CameraPose) (*render.RenderLayer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wc := toWirePose(camera)
	resp, err := c.roundTrip(wireRequest{Type: msgRender, Camera: &wc})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("render: backend error: %s", resp.Error)
	}
	layer := &render.RenderLayer{Width: resp.Width, Height: resp.Height, Pix: resp.Pixels}
	if err := layer.Validate(); err != nil {
		return nil, fmt.Errorf("render: malformed backend frame: %w", err)
	}
	return layer, nil
}
