package websocket

import (
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/octree/geometry"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestMsgDataTo(t *testing.T) {
	t.Run("data is decoded", func(t *testing.T) {
		msg, err := NewMsg(MsgTypeSubscribeRequest, 3, SubscribeRequest{Scene: "12", DepthTest: true})
		require.NoError(t, err)
		require.Equal(t, MsgTypeSubscribeRequest, msg.Type)
		require.Equal(t, uint32(3), msg.RequestID)

		var req SubscribeRequest
		require.NoError(t, msg.DataTo(&req))
		require.Equal(t, "12", req.Scene)
		require.True(t, req.DepthTest)
	})

	t.Run("empty data", func(t *testing.T) {
		msg, err := NewMsg(MsgTypePingRequest, 0, nil)
		require.NoError(t, err)
		require.Empty(t, msg.Data)

		var req SubscribeRequest
		require.NoError(t, msg.DataTo(&req))
	})

	t.Run("invalid data", func(t *testing.T) {
		msg := Msg{Type: MsgTypeSubscribeRequest, Data: []byte(`"scene"`)}

		var req SubscribeRequest
		err := msg.DataTo(&req)
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeMsgDecode))
	})
}

func TestGeometryCollector(t *testing.T) {
	inside := geometry.NewBoundingBox(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 1, 1})
	outside := geometry.NewBoundingBox(mgl32.Vec3{10, 10, 10}, mgl32.Vec3{11, 11, 11})

	t.Run("without volume", func(t *testing.T) {
		var c geometryCollector
		require.True(t, c.IsInside(inside))
		require.True(t, c.IsInside(outside))
	})

	t.Run("with volume", func(t *testing.T) {
		c := geometryCollector{
			volume: geometry.NewBoundingBox(mgl32.Vec3{-5, -5, -5}, mgl32.Vec3{5, 5, 5}),
		}
		require.True(t, c.IsInside(inside))
		require.False(t, c.IsInside(outside))

		c.AddBoundingBox(inside, mgl32.Vec4{1, 0, 0, 1}, true)
		require.Equal(t, []DebugBox{{
			Min:       inside.Min,
			Max:       inside.Max,
			Color:     mgl32.Vec4{1, 0, 0, 1},
			DepthTest: true,
		}}, c.boxes)
	})
}
