package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Inference wire protocol. The server sends one metadata message on connect,
// then answers each request with one response.
const (
	msgInfer = "infer"
	msgReset = "reset"
)

type wireImage struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pixels []byte `json:"pixels"` // RGB bytes, base64 on the wire
}

type wireRequest struct {
	Type        string     `json:"type"`
	Instruction string     `json:"instruction,omitempty"`
	Joints      []float64  `json:"joints,omitempty"`
	Gripper     float64    `json:"gripper,omitempty"`
	Image       *wireImage `json:"image,omitempty"`
}

type wireResponse struct {
	OK      bool        `json:"ok"`
	Error   string      `json:"error,omitempty"`
	Actions [][]float64 `json:"actions,omitempty"`
}

// serverMetadata is the first message a server sends after the websocket
// handshake.
type serverMetadata struct {
	ServerName   string `json:"server_name,omitempty"`
	NActionSteps int    `json:"n_action_steps,omitempty"`
}

// ClientConfig holds connection and chunking settings.
type ClientConfig struct {
	URL string `json:"url"`
	// RequestTimeout bounds each inference round trip.
	RequestTimeout time.Duration `json:"request_timeout"`
	// ImageWidth and ImageHeight are the model's input resolution. Frames
	// are letterboxed to this shape before upload.
	ImageWidth  int `json:"image_width"`
	ImageHeight int `json:"image_height"`
	// OpenLoopHorizon is how many actions of each returned chunk execute
	// before the next inference. Capped by the server's n_action_steps.
	OpenLoopHorizon int `json:"open_loop_horizon"`
	// BinarizeGripper snaps gripper commands to fully open or closed.
	BinarizeGripper bool `json:"binarize_gripper"`
}

// DefaultClientConfig returns settings matching a local inference server.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		URL:             "ws://localhost:8000/infer",
		RequestTimeout:  60 * time.Second,
		ImageWidth:      224,
		ImageHeight:     224,
		OpenLoopHorizon: 8,
		BinarizeGripper: true,
	}
}

// Client is a Policy backed by a remote inference server. It requests a
// chunk of actions at a time and serves them one per Act call, re-inferring
// when the open-loop horizon is exhausted.
type Client struct {
	cfg ClientConfig

	mu      sync.Mutex
	conn    *websocket.Conn
	meta    serverMetadata
	horizon int
	chunk   [][]float64
	served  int
}

// Dial connects to the inference server and reads its metadata message.
func Dial(cfg ClientConfig) (*Client, error) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.OpenLoopHorizon <= 0 {
		cfg.OpenLoopHorizon = 1
	}
	conn, _, err := websocket.DefaultDialer.Dial(cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial policy server %s: %w", cfg.URL, err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(cfg.RequestTimeout)); err != nil {
		conn.Close()
		return nil, err
	}
	var meta serverMetadata
	if err := conn.ReadJSON(&meta); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read server metadata: %w", err)
	}

	horizon := cfg.OpenLoopHorizon
	if meta.NActionSteps > 0 && meta.NActionSteps < horizon {
		horizon = meta.NActionSteps
	}
	return &Client{cfg: cfg, conn: conn, meta: meta, horizon: horizon}, nil
}

// ServerName reports the connected server's self-description.
func (c *Client) ServerName() string { return c.meta.ServerName }

// Close shuts the connection down cleanly.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// Reset drops any cached action chunk and tells the server to clear its
// episode state. Server errors on reset are ignored; a fresh chunk is
// requested on the next Act regardless.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunk = nil
	c.served = 0

	deadline := time.Now().Add(c.cfg.RequestTimeout)
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return
	}
	if err := c.conn.WriteJSON(wireRequest{Type: msgReset}); err != nil {
		return
	}
	_ = c.conn.SetReadDeadline(deadline)
	var resp wireResponse
	_ = c.conn.ReadJSON(&resp)
}

// Act returns the next action for the observation. When the cached chunk is
// exhausted a new inference runs; otherwise the observation is ignored and
// the next cached action is served (open-loop execution).
func (c *Client) Act(ctx context.Context, obs Observation) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.served >= len(c.chunk) || c.served >= c.horizon {
		if err := c.infer(obs); err != nil {
			return nil, err
		}
	}

	action := make([]float64, len(c.chunk[c.served]))
	copy(action, c.chunk[c.served])
	c.served++

	if len(action) != ActionDims {
		return nil, fmt.Errorf("policy action has %d dims, want %d", len(action), ActionDims)
	}
	if c.cfg.BinarizeGripper {
		action[ActionDims-1] = BinarizeGripper(action[ActionDims-1])
	}
	return action, nil
}

// infer runs one request/response exchange and replaces the cached chunk.
// Caller holds the lock.
func (c *Client) infer(obs Observation) error {
	if obs.Image == nil {
		return fmt.Errorf("policy: observation has no image")
	}
	img := obs.Image
	if c.cfg.ImageWidth > 0 && c.cfg.ImageHeight > 0 {
		img = ResizeWithPad(img, c.cfg.ImageWidth, c.cfg.ImageHeight)
	}
	req := wireRequest{
		Type:        msgInfer,
		Instruction: obs.Instruction,
		Joints:      obs.JointPositions,
		Gripper:     obs.Gripper,
		Image:       &wireImage{Width: img.Width, Height: img.Height, Pixels: img.Pix},
	}

	deadline := time.Now().Add(c.cfg.RequestTimeout)
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write infer request: %w", err)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return err
	}
	var resp wireResponse
	if err := c.conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("read infer response: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("infer: server error: %s", resp.Error)
	}
	if len(resp.Actions) == 0 {
		return fmt.Errorf("infer: server returned an empty action chunk")
	}
	c.chunk = resp.Actions
	c.served = 0
	return nil
}

var _ Policy = (*Client)(nil)
