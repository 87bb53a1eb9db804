// Package portal negotiates screen capture consent through the desktop
// portal's ScreenCast interface over the session D-Bus. It produces the
// bus node IDs and the remote file descriptor that the screencast engine
// attaches to.
package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/castnode/castnode/internal/logging"
)

const (
	portalName = "org.freedesktop.portal.Desktop"
	portalPath = "/org/freedesktop/portal/desktop"

	screenCastInterface = "org.freedesktop.portal.ScreenCast"
	requestInterface    = "org.freedesktop.portal.Request"
	sessionInterface    = "org.freedesktop.portal.Session"
	propertiesGet       = "org.freedesktop.DBus.Properties.Get"
)

// SourceType selects what kind of content the user may pick.
type SourceType uint32

const (
	SourceMonitor SourceType = 1 << iota
	SourceWindow
	SourceVirtual
)

// CursorMode controls how the pointer appears in captured frames.
type CursorMode uint32

const (
	CursorHidden CursorMode = 1 << iota
	CursorEmbedded
	CursorMetadata
)

// PersistMode controls whether consent survives the session or a restart.
type PersistMode uint32

const (
	PersistNone PersistMode = iota
	PersistRunning
	PersistPersistent
)

// ErrCancelled is returned when the user dismisses the consent dialog.
var ErrCancelled = errors.New("portal request cancelled by user")

// Client is one connection to the session bus scoped to the desktop portal.
type Client struct {
	conn   *dbus.Conn
	logger *slog.Logger
}

// Connect opens a session bus connection for portal calls.
func Connect() (*Client, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &Client{
		conn:   conn,
		logger: logging.GetLogger("portal"),
	}, nil
}

// Close releases the bus connection. Portal sessions created from the
// client stop receiving signals afterwards.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) object() dbus.BusObject {
	return c.conn.Object(portalName, dbus.ObjectPath(portalPath))
}

func (c *Client) uint32Property(property string) (uint32, error) {
	call := c.object().Call(propertiesGet, 0, screenCastInterface, property)
	if call.Err != nil {
		return 0, call.Err
	}
	var v dbus.Variant
	if err := call.Store(&v); err != nil {
		return 0, err
	}
	value, ok := v.Value().(uint32)
	if !ok {
		return 0, fmt.Errorf("property %s has unexpected type %T", property, v.Value())
	}
	return value, nil
}

// AvailableSourceTypes returns the source kinds the portal backend offers.
func (c *Client) AvailableSourceTypes() (SourceType, error) {
	v, err := c.uint32Property("AvailableSourceTypes")
	return SourceType(v), err
}

// AvailableCursorModes returns the cursor modes the portal backend offers.
func (c *Client) AvailableCursorModes() (CursorMode, error) {
	v, err := c.uint32Property("AvailableCursorModes")
	return CursorMode(v), err
}

// Version returns the ScreenCast interface version.
func (c *Client) Version() (uint32, error) {
	return c.uint32Property("version")
}

// newToken builds a portal handle token. The portal requires tokens to be
// valid object path elements, so dashes are stripped.
func newToken() string {
	return "castnode" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// awaitResponse waits for the Response signal on a portal request object.
// Portal methods return immediately; the actual result, including user
// consent, arrives asynchronously.
func (c *Client) awaitResponse(ctx context.Context, request dbus.ObjectPath) (map[string]dbus.Variant, error) {
	if err := c.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(request),
		dbus.WithMatchInterface(requestInterface),
		dbus.WithMatchMember("Response"),
	); err != nil {
		return nil, fmt.Errorf("match portal response: %w", err)
	}
	defer c.conn.RemoveMatchSignal(
		dbus.WithMatchObjectPath(request),
		dbus.WithMatchInterface(requestInterface),
		dbus.WithMatchMember("Response"),
	)

	signals := make(chan *dbus.Signal, 8)
	c.conn.Signal(signals)
	defer c.conn.RemoveSignal(signals)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return nil, errors.New("bus connection closed")
			}
			if sig.Path != request || len(sig.Body) != 2 {
				continue
			}
			status, _ := sig.Body[0].(uint32)
			results, _ := sig.Body[1].(map[string]dbus.Variant)
			if status != 0 {
				return nil, ErrCancelled
			}
			return results, nil
		}
	}
}

func (c *Client) request(ctx context.Context, method string, args ...any) (map[string]dbus.Variant, error) {
	call := c.object().Call(screenCastInterface+"."+method, 0, args...)
	if call.Err != nil {
		return nil, fmt.Errorf("%s: %w", method, call.Err)
	}
	var request dbus.ObjectPath
	if err := call.Store(&request); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return c.awaitResponse(ctx, request)
}

// Session is one portal consent session. It owns a remote capture session
// on the portal side until Close.
type Session struct {
	client *Client
	path   dbus.ObjectPath

	// RestoreToken, when non-empty after Start, lets a later session skip
	// the consent dialog.
	RestoreToken string
}

// CreateSession asks the portal for a new screen cast session.
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	results, err := c.request(ctx, "CreateSession", map[string]dbus.Variant{
		"handle_token":         dbus.MakeVariant(newToken()),
		"session_handle_token": dbus.MakeVariant(newToken()),
	})
	if err != nil {
		return nil, err
	}

	handle, ok := results["session_handle"]
	if !ok {
		return nil, errors.New("portal response missing session_handle")
	}
	path, ok := handle.Value().(string)
	if !ok {
		return nil, fmt.Errorf("session_handle has unexpected type %T", handle.Value())
	}

	c.logger.Debug("Portal session created", "path", path)
	return &Session{client: c, path: dbus.ObjectPath(path)}, nil
}

// SourceOptions constrains what the consent dialog offers.
type SourceOptions struct {
	Types        SourceType
	Multiple     bool
	CursorMode   CursorMode
	RestoreToken string
	PersistMode  PersistMode
}

// SelectSources declares what the session wants to capture. The portal
// shows its picker when Start is called.
func (s *Session) SelectSources(ctx context.Context, opts SourceOptions) error {
	data := map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(newToken()),
	}
	if opts.Types != 0 {
		data["types"] = dbus.MakeVariant(uint32(opts.Types))
	}
	if opts.Multiple {
		data["multiple"] = dbus.MakeVariant(true)
	}
	if opts.CursorMode != 0 {
		data["cursor_mode"] = dbus.MakeVariant(uint32(opts.CursorMode))
	}
	if opts.RestoreToken != "" {
		data["restore_token"] = dbus.MakeVariant(opts.RestoreToken)
	}
	if opts.PersistMode != 0 {
		data["persist_mode"] = dbus.MakeVariant(uint32(opts.PersistMode))
	}

	_, err := s.client.request(ctx, "SelectSources", s.path, data)
	return err
}

// Stream is one granted capture source.
type Stream struct {
	NodeID     uint32
	Position   [2]int32
	Size       [2]int32
	SourceType SourceType
}

// Start presents the consent dialog and returns the granted streams.
// parentWindow may be empty for headless callers.
func (s *Session) Start(ctx context.Context, parentWindow string) ([]Stream, error) {
	results, err := s.client.request(ctx, "Start", s.path, parentWindow, map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(newToken()),
	})
	if err != nil {
		return nil, err
	}

	if token, ok := results["restore_token"]; ok {
		if str, ok := token.Value().(string); ok {
			s.RestoreToken = str
		}
	}

	raw, ok := results["streams"]
	if !ok {
		return nil, errors.New("portal response missing streams")
	}
	streams := parseStreams(raw.Value())
	if len(streams) == 0 {
		return nil, errors.New("portal granted no streams")
	}

	s.client.logger.Info("Portal session started", "streams", len(streams))
	return streams, nil
}

// parseStreams decodes the portal's a(ua{sv}) stream list. Variants arrive
// untyped, so every level is checked.
func parseStreams(value any) []Stream {
	entries, ok := value.([][]any)
	if !ok {
		wrapped, ok := value.([]any)
		if !ok {
			return nil
		}
		for _, e := range wrapped {
			if inner, ok := e.([]any); ok {
				entries = append(entries, inner)
			}
		}
	}

	var streams []Stream
	for _, entry := range entries {
		if len(entry) < 2 {
			continue
		}
		stream := Stream{}
		if node, ok := entry[0].(uint32); ok {
			stream.NodeID = node
		}
		if props, ok := entry[1].(map[string]dbus.Variant); ok {
			if v, ok := props["position"]; ok {
				if pair, ok := parseInt32Pair(v.Value()); ok {
					stream.Position = pair
				}
			}
			if v, ok := props["size"]; ok {
				if pair, ok := parseInt32Pair(v.Value()); ok {
					stream.Size = pair
				}
			}
			if v, ok := props["source_type"]; ok {
				if t, ok := v.Value().(uint32); ok {
					stream.SourceType = SourceType(t)
				}
			}
		}
		streams = append(streams, stream)
	}
	return streams
}

func parseInt32Pair(value any) ([2]int32, bool) {
	values, ok := value.([]any)
	if !ok || len(values) < 2 {
		return [2]int32{}, false
	}
	a, ok := values[0].(int32)
	if !ok {
		return [2]int32{}, false
	}
	b, ok := values[1].(int32)
	if !ok {
		return [2]int32{}, false
	}
	return [2]int32{a, b}, true
}

// OpenRemote returns a file descriptor connected to the consumer bus,
// restricted to the granted nodes. The caller owns the descriptor.
func (s *Session) OpenRemote() (int, error) {
	call := s.client.object().Call(screenCastInterface+".OpenPipeWireRemote", 0, s.path, map[string]dbus.Variant{})
	if call.Err != nil {
		return -1, fmt.Errorf("OpenPipeWireRemote: %w", call.Err)
	}
	var fd dbus.UnixFD
	if err := call.Store(&fd); err != nil {
		return -1, err
	}
	return int(fd), nil
}

// Close ends the portal session and revokes non-persistent consent.
func (s *Session) Close() error {
	obj := s.client.conn.Object(portalName, s.path)
	return obj.Call(sessionInterface+".Close", 0).Err
}
