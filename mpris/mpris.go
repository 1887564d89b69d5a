// Package mpris exposes the player on the session bus as an
// org.mpris.MediaPlayer2 service, so desktop media keys and applets control
// playback.
package mpris

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/cadenza-cli/cadenza/audio"
	"github.com/cadenza-cli/cadenza/constant"
	"github.com/cadenza-cli/cadenza/log"
)

const (
	objectPath      = "/org/mpris/MediaPlayer2"
	rootInterface   = "org.mpris.MediaPlayer2"
	playerInterface = "org.mpris.MediaPlayer2.Player"
	propsInterface  = "org.freedesktop.DBus.Properties"
)

// Controls publishes playback state over D-Bus and turns incoming media-key
// calls into player actions. The bus connection is made lazily on the first
// publication and dropped again on Deinit, releasing the well-known name.
type Controls struct {
	mu       sync.Mutex
	conn     *dbus.Conn
	toPlayer chan<- audio.AudioAction

	metadata map[string]dbus.Variant
	playing  bool
	active   bool
	position int64 // microseconds
}

// New wires the controls to the player's action channel. Nothing touches
// the bus until the player publishes something.
func New(toPlayer chan<- audio.AudioAction) *Controls {
	return &Controls{
		toPlayer: toPlayer,
		metadata: noTrackMetadata(),
	}
}

func (c *Controls) SetMetadata(metadata audio.ControlsMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ensureInit() {
		return
	}

	c.metadata = metadataVariants(metadata)
	c.active = true

	c.propertiesChanged(map[string]any{"Metadata": c.metadata})
}

func (c *Controls) SetPlayback(playback audio.Playback) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ensureInit() {
		return
	}

	c.playing = playback.Playing
	c.active = true
	if position, ok := playback.Position.Get(); ok {
		c.position = position.Microseconds()
	}

	c.propertiesChanged(map[string]any{
		"PlaybackStatus": c.playbackStatus(),
		"Position":       c.position,
	})
}

// Deinit drops off the bus. The next publication reconnects.
func (c *Controls) Deinit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.release()
	c.metadata = noTrackMetadata()
	c.playing = false
	c.active = false
	c.position = 0
}

// Close is Deinit for shutdown paths; it must run before the action channel
// closes so a late media-key call cannot hit a closed channel.
func (c *Controls) Close() {
	c.Deinit()
}

func (c *Controls) release() {
	if c.conn == nil {
		return
	}

	c.conn.ReleaseName(constant.MprisBusName)
	c.conn.Close()
	c.conn = nil
}

// ensureInit connects and exports the service, reporting whether the
// controls are usable. Failures are logged and retried on the next call.
func (c *Controls) ensureInit() bool {
	if c.conn != nil {
		return true
	}

	if err := c.init(); err != nil {
		log.Errorf("failed to init media controls: %v", err)
		return false
	}

	return true
}

func (c *Controls) init() error {
	log.Trace("initializing media controls")

	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("connecting to session bus: %w", err)
	}

	for _, iface := range []string{propsInterface, rootInterface, playerInterface} {
		if err := conn.Export(c, objectPath, iface); err != nil {
			conn.Close()
			return fmt.Errorf("exporting %s: %w", iface, err)
		}
	}

	reply, err := conn.RequestName(constant.MprisBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return fmt.Errorf("requesting bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return fmt.Errorf("bus name %s already taken", constant.MprisBusName)
	}

	c.conn = conn

	return nil
}

func (c *Controls) propertiesChanged(changed map[string]any) {
	if c.conn == nil {
		return
	}

	err := c.conn.Emit(
		dbus.ObjectPath(objectPath),
		propsInterface+".PropertiesChanged",
		playerInterface,
		changed,
		[]string{},
	)
	if err != nil {
		log.Errorf("failed to emit PropertiesChanged: %v", err)
	}
}

// send forwards an action without ever blocking a bus handler.
func (c *Controls) send(action audio.AudioAction) {
	select {
	case c.toPlayer <- action:
	default:
		log.Error("failed to send from controls to audio")
	}
}

func (c *Controls) playbackStatus() string {
	switch {
	case !c.active:
		return "Stopped"
	case c.playing:
		return "Playing"
	default:
		return "Paused"
	}
}

// org.mpris.MediaPlayer2.Player methods. The media-key surface maps onto
// player actions; everything without a counterpart is acknowledged and
// ignored.

func (c *Controls) Play() *dbus.Error {
	c.send(audio.PlayPaused{})
	return nil
}

func (c *Controls) Pause() *dbus.Error {
	c.send(audio.Pause{})
	return nil
}

func (c *Controls) PlayPause() *dbus.Error {
	c.send(audio.Toggle{})
	return nil
}

func (c *Controls) Next() *dbus.Error {
	c.send(audio.Forward{})
	return nil
}

func (c *Controls) Previous() *dbus.Error {
	c.send(audio.Back{})
	return nil
}

func (c *Controls) Stop() *dbus.Error {
	log.Info("unsupported media control call: Stop")
	return nil
}

func (c *Controls) Seek(offset int64) *dbus.Error {
	log.Info("unsupported media control call: Seek")
	return nil
}

func (c *Controls) SetPosition(trackID dbus.ObjectPath, position int64) *dbus.Error {
	log.Info("unsupported media control call: SetPosition")
	return nil
}

func (c *Controls) OpenUri(uri string) *dbus.Error {
	return dbus.MakeFailedError(fmt.Errorf("OpenUri is not supported"))
}

// org.mpris.MediaPlayer2 methods.

func (c *Controls) Raise() *dbus.Error {
	return nil
}

func (c *Controls) Quit() *dbus.Error {
	log.Info("unsupported media control call: Quit")
	return nil
}

// org.freedesktop.DBus.Properties implementation.

func (c *Controls) Get(interfaceName, propertyName string) (dbus.Variant, *dbus.Error) {
	props, dbusErr := c.GetAll(interfaceName)
	if dbusErr != nil {
		return dbus.Variant{}, dbusErr
	}

	if value, ok := props[propertyName]; ok {
		return value, nil
	}

	return dbus.Variant{}, dbus.MakeFailedError(
		fmt.Errorf("unknown property %s.%s", interfaceName, propertyName))
}

func (c *Controls) GetAll(interfaceName string) (map[string]dbus.Variant, *dbus.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch interfaceName {
	case rootInterface:
		return map[string]dbus.Variant{
			"CanQuit":             dbus.MakeVariant(false),
			"CanRaise":            dbus.MakeVariant(false),
			"HasTrackList":        dbus.MakeVariant(false),
			"Identity":            dbus.MakeVariant(constant.Cadenza),
			"DesktopEntry":        dbus.MakeVariant(""),
			"SupportedUriSchemes": dbus.MakeVariant([]string{"file"}),
			"SupportedMimeTypes": dbus.MakeVariant([]string{
				"audio/flac", "audio/mpeg", "audio/wav", "audio/ogg",
			}),
		}, nil

	case playerInterface:
		return map[string]dbus.Variant{
			"PlaybackStatus": dbus.MakeVariant(c.playbackStatus()),
			"LoopStatus":     dbus.MakeVariant("None"),
			"Rate":           dbus.MakeVariant(1.0),
			"Shuffle":        dbus.MakeVariant(false),
			"Metadata":       dbus.MakeVariant(c.metadata),
			"Volume":         dbus.MakeVariant(1.0),
			"Position":       dbus.MakeVariant(c.position),
			"MinimumRate":    dbus.MakeVariant(1.0),
			"MaximumRate":    dbus.MakeVariant(1.0),
			"CanGoNext":      dbus.MakeVariant(true),
			"CanGoPrevious":  dbus.MakeVariant(true),
			"CanPlay":        dbus.MakeVariant(true),
			"CanPause":       dbus.MakeVariant(true),
			"CanSeek":        dbus.MakeVariant(false),
			"CanControl":     dbus.MakeVariant(true),
		}, nil
	}

	return nil, dbus.MakeFailedError(fmt.Errorf("unknown interface %s", interfaceName))
}

func (c *Controls) Set(interfaceName, propertyName string, value dbus.Variant) *dbus.Error {
	return dbus.MakeFailedError(
		fmt.Errorf("property %s.%s is not writable", interfaceName, propertyName))
}

func noTrackMetadata() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(
			dbus.ObjectPath("/org/mpris/MediaPlayer2/TrackList/NoTrack")),
	}
}

func metadataVariants(metadata audio.ControlsMetadata) map[string]dbus.Variant {
	variants := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(
			dbus.ObjectPath("/org/mpris/MediaPlayer2/Track/Current")),
	}

	if title, ok := metadata.Title.Get(); ok {
		variants["xesam:title"] = dbus.MakeVariant(title)
	}
	if artist, ok := metadata.Artist.Get(); ok {
		variants["xesam:artist"] = dbus.MakeVariant([]string{artist})
	}
	if album, ok := metadata.Album.Get(); ok {
		variants["xesam:album"] = dbus.MakeVariant(album)
	}
	if coverURL, ok := metadata.CoverURL.Get(); ok {
		variants["mpris:artUrl"] = dbus.MakeVariant(coverURL)
	}
	if duration, ok := metadata.Duration.Get(); ok {
		variants["mpris:length"] = dbus.MakeVariant(duration.Microseconds())
	}

	return variants
}

var _ audio.MediaControls = (*Controls)(nil)
