package websocket

import (
	"context"
	"strconv"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/octree/models"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// DebugHandler streams the octant boxes of a scene octree to a client after
// the scene frames.
type DebugHandler struct {
	// The store that contains the scenes that can be streamed.
	Scenes *models.SceneStore

	// The minimum interval between two debug geometry messages.
	Interval time.Duration

	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	conn              *websocket.Conn
	clientID          string
	currentScene      *models.Scene
	depthTest         bool
	cameraOnly        bool
	lastSent          time.Time
	stopFrameHandling func()
}

func (h *DebugHandler) HandleConnect(conn *websocket.Conn) {
	h.conn = conn
	h.clientID = uuid.NewString()
}

func (h *DebugHandler) HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error {
	respond.Send(MsgTypePingResponse, msg.RequestID, nil)
	return nil
}

func (h *DebugHandler) HandleSubscribe(ctx context.Context, handleFrame func(), respond ResponseSender, msg Msg) error {
	var req SubscribeRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	scene, ok := h.getScene(req.Scene)
	if !ok {
		respond.Send(MsgTypeError, msg.RequestID, ErrorResponse{
			Type:    ErrTypeSceneNotFound,
			Message: "scene not found",
		})
		return nil
	}

	h.unsubscribe()

	h.currentScene = scene
	h.depthTest = req.DepthTest
	h.cameraOnly = req.CameraOnly
	h.lastSent = time.Time{}
	h.stopFrameHandling = scene.HandleFrame(handleFrame)

	respond.Send(MsgTypeSubscribeResponse, msg.RequestID, SubscribeResponse{
		SceneID:   scene.ID,
		SceneUUID: scene.SceneUUID,
	})
	return nil
}

func (h *DebugHandler) HandleUnsubscribe(ctx context.Context, respond ResponseSender, msg Msg) error {
	if h.currentScene == nil {
		respond.Send(MsgTypeError, msg.RequestID, ErrorResponse{
			Type:    ErrTypeSceneNotSelected,
			Message: "no scene subscribed",
		})
		return nil
	}

	h.unsubscribe()
	respond.Send(MsgTypeUnsubscribeResponse, msg.RequestID, nil)
	return nil
}

func (h *DebugHandler) SendDebugGeometry(ctx context.Context, respond ResponseSender) error {
	scene := h.currentScene
	if scene == nil {
		return nil
	}

	now := time.Now()
	if now.Sub(h.lastSent) < h.Interval {
		return nil
	}
	h.lastSent = now

	var collector geometryCollector
	if h.cameraOnly {
		collector.volume = scene.Camera().Frustum()
	}
	scene.DrawDebugGeometry(&collector, h.depthTest)

	stats := scene.Stats()
	respond.Send(MsgTypeDebugGeometry, 0, DebugGeometry{
		SceneID:     scene.ID,
		FrameNumber: stats.FrameNumber,
		Octants:     stats.Octants,
		Boxes:       collector.boxes,
	})
	return nil
}

func (h *DebugHandler) HandleDisconnect(_ error) {
	h.unsubscribe()
}

func (h *DebugHandler) Receiver() Receiver {
	return func() (Msg, int, error) {
		var data []byte
		if err := websocket.Message.Receive(h.conn, &data); err != nil {
			return Msg{}, 0, err
		}

		var msg Msg
		if err := json.Unmarshal(data, &msg); err != nil {
			return Msg{}, len(data), errors.New("decoding message failed").
				WithType(ErrTypeMsgDecode).
				Wrap(err)
		}
		return msg, len(data), nil
	}
}

func (h *DebugHandler) Sender() Sender {
	return func(msg Msg) (int, error) {
		data, err := json.Marshal(msg)
		if err != nil {
			return 0, errors.New("encoding message failed").
				WithType(ErrTypeMsgEncode).
				WithTag("msg_type", msg.Type).
				Wrap(err)
		}

		if err := websocket.Message.Send(h.conn, string(data)); err != nil {
			return 0, err
		}
		return len(data), nil
	}
}

func (h *DebugHandler) Close() {
	h.unsubscribe()
}

func (h *DebugHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *DebugHandler) CurrentScene() *models.Scene {
	return h.currentScene
}

func (h *DebugHandler) GetClientID() string {
	return h.clientID
}

func (h *DebugHandler) unsubscribe() {
	if h.stopFrameHandling != nil {
		h.stopFrameHandling()
		h.stopFrameHandling = nil
	}
	h.currentScene = nil
}

func (h *DebugHandler) getScene(v string) (*models.Scene, bool) {
	if id, err := strconv.ParseUint(v, 10, 32); err == nil {
		return h.Scenes.Get(uint32(id))
	}
	return h.Scenes.GetByUUID(v)
}
