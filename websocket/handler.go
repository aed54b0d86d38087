package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/octree/models"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize = 64
)

// Handler represents a debug stream handler.
type Handler interface {
	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Handles a ping request.
	HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to stream the octree of a scene. handleFrame is
	// registered as the scene frame handler.
	HandleSubscribe(ctx context.Context, handleFrame func(), respond ResponseSender, msg Msg) error

	// Handles a request to stop streaming.
	HandleUnsubscribe(ctx context.Context, respond ResponseSender, msg Msg) error

	// Sends the debug geometry of the subscribed scene.
	SendDebugGeometry(ctx context.Context, respond ResponseSender) error

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// Creates a message receiver used to receive incoming messages.
	Receiver() Receiver

	// Creates a message sender passed in service methods in order to send
	// messages.
	Sender() Sender

	// Closes the service and releases its allocated resources.
	Close()

	// The time a client is idle before being disconnected.
	IdleTimeout() time.Duration

	// The subscribed scene.
	CurrentScene() *models.Scene

	GetClientID() string
}

// Handle handles the given service.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The WebSocket connection.
	Conn *websocket.Conn

	// The debug stream handler.
	Handler Handler

	sendChan       chan Msg
	receiveChan    chan Msg
	frameChan      chan struct{}
	sender         Sender
	receiver       Receiver
	disconnectChan chan error
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.Handler.HandleConnect(h.Conn)

	h.disconnectChan = make(chan error, 8)
	defer func() {
		for len(h.disconnectChan) != 0 {
			<-h.disconnectChan
		}
	}()

	var wg sync.WaitGroup

	h.sendChan = make(chan Msg, sendChanSize)
	h.sender = h.Handler.Sender()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startSending(ctx)
	}()

	h.receiveChan = make(chan Msg)
	h.frameChan = make(chan struct{}, 1)
	h.receiver = h.Handler.Receiver()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startReceiving(ctx)
	}()

	idleTimeout := h.Handler.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	responder := responseSender{
		send:    h.send,
		sendMsg: h.sendMsg,
	}

	var disconnectErr error

loop:
	for {
		select {
		case <-ctx.Done():
			disconnectErr = ctx.Err()
			break loop

		case <-idleTimer.C:
			h.disconnect(errors.New("idle connection").WithTag("duration", idleTimeout))

		case <-h.frameChan:
			if err := h.Handler.SendDebugGeometry(ctx, responder); err != nil {
				h.disconnect(errors.New("sending debug geometry failed").Wrap(err))
			}

		case msg := <-h.receiveChan:
			idleTimer.Stop()
			idleTimer.Reset(idleTimeout)

			if err := h.handleMessage(ctx, msg, responder); err != nil {
				h.disconnect(errors.New("handling message failed").Wrap(err))
			}

		case disconnectErr = <-h.disconnectChan:
			break loop
		}
	}

	h.handleDisconnect(disconnectErr)

	// cancel context so go routines can cleanly exit
	cancel()
	wg.Wait()
}

// handleFrame is called by the scene frame loop. Frames arriving while the
// previous one is still being sent are dropped.
func (h *handler) handleFrame() {
	select {
	case h.frameChan <- struct{}{}:
	default:
	}
}

func (h *handler) send(t MsgType, requestID uint32, v any) {
	msg, err := NewMsg(t, requestID, v)
	if err != nil {
		logs.WithTag("client_id", h.Handler.GetClientID()).
			WithTag("msg_type", t).
			Debug(err)
		return
	}
	h.sendMsg(msg)
}

func (h *handler) sendMsg(msg Msg) {
	select {
	case h.sendChan <- msg:
	default:
		logs.WithTag("client_id", h.Handler.GetClientID()).
			WithTag("msg_type", msg.Type).
			Debug("send queue full, message dropped")
	}
}

func (h *handler) startSending(ctx context.Context) {
	defer func() {
		for len(h.sendChan) != 0 {
			<-h.sendChan
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.sendChan:
			if _, err := h.sender(msg); err != nil {
				h.disconnect(errors.New("sending message failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) startReceiving(ctx context.Context) {
	for {
		msg, _, err := h.receiver()
		if err != nil {
			h.disconnect(errors.New("receiving message failed").Wrap(err))
			return
		}

		select {
		case <-ctx.Done():
			return
		case h.receiveChan <- msg:
		}
	}
}

func (h *handler) handleMessage(ctx context.Context, msg Msg, responder ResponseSender) error {
	var err error

	switch msg.Type {
	case MsgTypePingRequest:
		err = h.Handler.HandlePing(ctx, responder, msg)

	case MsgTypeSubscribeRequest:
		err = h.Handler.HandleSubscribe(ctx, h.handleFrame, responder, msg)

	case MsgTypeUnsubscribeRequest:
		err = h.Handler.HandleUnsubscribe(ctx, responder, msg)

	default:
		logs.WithTag("client_id", h.Handler.GetClientID()).
			WithTag("msg_type", msg.Type).
			Debug("unknown message type")
	}

	return err
}

func (h *handler) disconnect(err error) {
	select {
	case h.disconnectChan <- err:
	default:
	}
}

func (h *handler) handleDisconnect(err error) {
	h.Conn.Close()
	h.Handler.HandleDisconnect(err)
}

type responseSender struct {
	send    func(MsgType, uint32, any)
	sendMsg func(Msg)
}

func (r responseSender) Send(t MsgType, requestID uint32, v any) {
	r.send(t, requestID, v)
}

func (r responseSender) SendMsg(msg Msg) {
	r.sendMsg(msg)
}
