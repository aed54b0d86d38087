package websocket

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/octree/geometry"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/segmentio/encoding/json"
)

const (
	ErrTypeMsgDecode        = "msg_decode_error"
	ErrTypeMsgEncode        = "msg_encode_error"
	ErrTypeSceneNotFound    = "scene_not_found"
	ErrTypeSceneNotSelected = "scene_not_selected"
)

// MsgType identifies the payload of a message.
type MsgType string

const (
	MsgTypePingRequest         MsgType = "ping_request"
	MsgTypePingResponse        MsgType = "ping_response"
	MsgTypeSubscribeRequest    MsgType = "subscribe_request"
	MsgTypeSubscribeResponse   MsgType = "subscribe_response"
	MsgTypeUnsubscribeRequest  MsgType = "unsubscribe_request"
	MsgTypeUnsubscribeResponse MsgType = "unsubscribe_response"
	MsgTypeDebugGeometry       MsgType = "debug_geometry"
	MsgTypeError               MsgType = "error"
)

// Msg is a message exchanged with a debug stream client.
type Msg struct {
	Type      MsgType         `json:"type"`
	RequestID uint32          `json:"request_id,omitempty"`
	Time      time.Time       `json:"time"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMsg returns a message of the given type carrying v.
func NewMsg(t MsgType, requestID uint32, v any) (Msg, error) {
	msg := Msg{
		Type:      t,
		RequestID: requestID,
		Time:      time.Now(),
	}

	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			return Msg{}, errors.New("encoding message data failed").
				WithType(ErrTypeMsgEncode).
				WithTag("msg_type", t).
				Wrap(err)
		}
		msg.Data = data
	}
	return msg, nil
}

// DataTo decodes the message data into v.
func (m Msg) DataTo(v any) error {
	if len(m.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.New("decoding message data failed").
			WithType(ErrTypeMsgDecode).
			WithTag("msg_type", m.Type).
			Wrap(err)
	}
	return nil
}

// A Receiver reads the next message of a connection. It returns the number
// of bytes read.
type Receiver func() (Msg, int, error)

// A Sender writes a message to a connection. It returns the number of bytes
// written.
type Sender func(Msg) (int, error)

// ResponseSender queues messages for a connection.
type ResponseSender interface {
	Send(t MsgType, requestID uint32, v any)
	SendMsg(Msg)
}

// SubscribeRequest selects the scene whose octree is streamed.
type SubscribeRequest struct {
	// The scene id or uuid.
	Scene string `json:"scene"`

	// Whether the client should depth test the boxes.
	DepthTest bool `json:"depth_test"`

	// Limits the streamed boxes to the scene camera frustum.
	CameraOnly bool `json:"camera_only"`
}

type SubscribeResponse struct {
	SceneID   uint32 `json:"scene_id"`
	SceneUUID string `json:"scene_uuid"`
}

type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// DebugBox is an octant box drawn by a debug stream client.
type DebugBox struct {
	Min       mgl32.Vec3 `json:"min"`
	Max       mgl32.Vec3 `json:"max"`
	Color     mgl32.Vec4 `json:"color"`
	DepthTest bool       `json:"depth_test"`
}

// DebugGeometry is the octree of a scene at a given frame.
type DebugGeometry struct {
	SceneID     uint32     `json:"scene_id"`
	FrameNumber uint32     `json:"frame_number"`
	Octants     int        `json:"octants"`
	Boxes       []DebugBox `json:"boxes"`
}

// geometryCollector records the boxes submitted by an octree.
type geometryCollector struct {
	volume geometry.Volume
	boxes  []DebugBox
}

func (c *geometryCollector) IsInside(box geometry.BoundingBox) bool {
	return c.volume == nil || c.volume.IsInsideBox(box) != geometry.Outside
}

func (c *geometryCollector) AddBoundingBox(box geometry.BoundingBox, color mgl32.Vec4, depthTest bool) {
	c.boxes = append(c.boxes, DebugBox{
		Min:       box.Min,
		Max:       box.Max,
		Color:     color,
		DepthTest: depthTest,
	})
}
