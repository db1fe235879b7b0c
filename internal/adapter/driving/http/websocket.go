package httphandler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ericfisherdev/keyflash/internal/application"
	"github.com/ericfisherdev/keyflash/internal/domain/model"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingEvery  = (wsPongWait * 9) / 10
	wsReadLimit  = 4096
	wsSendBuffer = 32
)

// The default origin check applies: browsers may only connect from the page
// served on the same host.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsInbound is a control message sent by the client.
type wsInbound struct {
	Type string `json:"type"`
}

// devicesMessage is pushed on the device stream whenever the device set changes.
type devicesMessage struct {
	Type    string           `json:"type"`
	Devices []DeviceResponse `json:"devices"`
	Error   string           `json:"error,omitempty"`
}

// DevicesWS streams the detected device list: once on connect and again after
// every change reported by the device watcher.
func (h *Handler) DevicesWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	send := make(chan any, wsSendBuffer)
	push := func(devices []model.Device) {
		select {
		case send <- devicesMessage{Type: "devices", Devices: toDeviceResponses(devices)}:
		default:
			h.logger.Warn("dropping device update for slow client", "remote", r.RemoteAddr)
		}
	}

	devices, err := h.devices.Enumerate(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "initial device enumeration failed", "error", err)
		send <- devicesMessage{Type: "error", Devices: []DeviceResponse{}, Error: "device enumeration failed"}
	} else {
		push(devices)
	}

	unsubscribe, err := h.devices.Subscribe(push)
	if err != nil {
		h.logger.ErrorContext(ctx, "device watch failed", "error", err)
		send <- devicesMessage{Type: "error", Devices: []DeviceResponse{}, Error: "device watch unavailable"}
		close(send)
		writePump(ctx, conn, send)
		return
	}
	defer unsubscribe()

	go func() {
		defer cancel()
		readPump(conn, nil)
	}()

	writePump(ctx, conn, send)
}

// FlashWS starts flashing the firmware given by the firmware query parameter
// onto the device given by the device parameter and streams the progress.
// Preconditions are checked before the upgrade so refusals are plain HTTP
// errors; the flash itself only starts on an upgraded connection. The client
// may send {"type":"cancel"} to abort; closing the connection aborts as well.
func (h *Handler) FlashWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("device") == "" {
		h.writeServiceError(w, r, "flash", application.ErrNoDeviceSelected)
		return
	}
	if q.Get("firmware") == "" {
		h.writeServiceError(w, r, "flash", application.ErrNoFirmwareSelected)
		return
	}

	device, fw, ok := h.lookupPair(w, r)
	if !ok {
		return
	}
	if err := h.flash.Check(device, fw); err != nil {
		h.writeServiceError(w, r, "flash", err)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	connCtx, cancelConn := context.WithCancel(r.Context())
	defer cancelConn()
	flashCtx, cancelFlash := context.WithCancel(connCtx)
	defer cancelFlash()

	session, err := h.flash.Start(flashCtx, device, fw)
	if err != nil {
		// Another flash claimed the device between the check and the upgrade.
		h.logger.WarnContext(connCtx, "flash refused after upgrade", "device", device.ID, "error", err)
		send := make(chan any, 1)
		send <- FlashEventResponse{
			Type:    "progress",
			Status:  string(model.FlashStatusError),
			Message: err.Error(),
		}
		close(send)
		writePump(connCtx, conn, send)
		return
	}

	send := make(chan any, wsSendBuffer)
	go func() {
		defer close(send)

		send <- FlashEventResponse{
			Type:        "started",
			OperationID: session.ID,
			Status:      string(model.FlashStatusFlashing),
		}

		last := model.FlashProgress{}
		for p := range session.Progress {
			last = p
			ev := toFlashEventResponse(p)
			ev.OperationID = session.ID
			select {
			case send <- ev:
			case <-connCtx.Done():
			}
		}

		// The relay stops forwarding once the flash is cancelled, so the
		// client may not have seen the terminal event.
		if !last.Status.IsTerminal() {
			select {
			case send <- FlashEventResponse{
				Type:        "progress",
				OperationID: session.ID,
				Percentage:  last.Percentage,
				TotalBytes:  last.TotalBytes,
				Status:      string(model.FlashStatusError),
				Message:     "Flash failed: cancelled",
			}:
			case <-connCtx.Done():
			}
		}
	}()

	go func() {
		defer cancelConn()
		readPump(conn, func(in wsInbound) {
			if in.Type == "cancel" {
				h.logger.InfoContext(flashCtx, "flash cancelled by client", "operation_id", session.ID)
				cancelFlash()
			}
		})
	}()

	writePump(connCtx, conn, send)
}

// writePump writes queued messages and keepalive pings until ctx is done, a
// write fails, or send is closed. A closed send ends the stream with a normal
// close frame.
func writePump(ctx context.Context, conn *websocket.Conn, send <-chan any) {
	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-send:
			if !ok {
				_ = conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(wsWriteWait),
				)
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes client frames so pongs and close frames are processed,
// passing each control message to onMessage. It returns when the connection
// fails or the client goes away.
func readPump(conn *websocket.Conn, onMessage func(wsInbound)) {
	conn.SetReadLimit(wsReadLimit)
	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		if onMessage != nil {
			onMessage(in)
		}
	}
}
