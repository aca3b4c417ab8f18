package speaker

import (
	"context"
	"time"
)

// Category is one of the device event streams a speaker subscribes to.
type Category string

const (
	CategoryAVTransport      Category = "avtransport"
	CategoryRenderingControl Category = "renderingcontrol"
	CategoryZoneTopology     Category = "topology"
	CategoryAlarmClock       Category = "alarmclock"
	CategoryDeviceProperties Category = "deviceproperties"
)

// Categories lists every subscribed event category.
var Categories = []Category{
	CategoryAVTransport,
	CategoryRenderingControl,
	CategoryZoneTopology,
	CategoryAlarmClock,
	CategoryDeviceProperties,
}

// Transport states reported in AVTransport events.
const (
	TransportPlaying       = "PLAYING"
	TransportPaused        = "PAUSED_PLAYBACK"
	TransportStopped       = "STOPPED"
	TransportTransitioning = "TRANSITIONING"
)

// Event is a decoded device notification.
type Event struct {
	UID            string
	Category       Category
	SID            string
	Seq            int
	TransportState string
	Values         map[Property]any
}

// Info is the static identity of a device.
type Info struct {
	UID             string
	IP              string
	ZoneName        string
	ZoneIcon        string
	Model           string
	ModelNumber     string
	SerialNumber    string
	SoftwareVersion string
	HardwareVersion string
	DisplayVersion  string
	MACAddress      string
	HouseholdID     string
}

// GroupMember is one speaker in a zone as reported by the device.
type GroupMember struct {
	UID           string
	IsCoordinator bool
}

// Group is the zone a device currently reports it belongs to.
type Group struct {
	ID      string
	Members []GroupMember
}

// Snapshot captures the playback state of a zone for a later Restore.
type Snapshot struct {
	URI            string
	Metadata       string
	IsQueue        bool
	Track          int
	Position       string
	TransportState string
	PlayMode       string
	Volume         int
	Mute           bool
}

// Lease is one live event subscription.
type Lease interface {
	ID() string
	Renew(ctx context.Context) error
	Unsubscribe(ctx context.Context) error
	// RemainingTime is zero once the lease expired or was cancelled.
	RemainingTime() time.Duration
}

// Device is the Device Gateway for a single physical speaker.
//
// SetProperty maps the transport flags to commands: play=true and pause=false
// and stop=false resume playback, play=false and pause=true pause, stop=true stops.
type Device interface {
	UID() string
	Info(ctx context.Context) (Info, error)
	Ping(ctx context.Context) error

	GetProperty(ctx context.Context, p Property) (any, error)
	SetProperty(ctx context.Context, p Property, value any) error

	Group(ctx context.Context) (*Group, error)
	Subscribe(ctx context.Context, category Category, timeout time.Duration, sink chan<- Event) (Lease, error)

	Snapshot(ctx context.Context) (*Snapshot, error)
	Restore(ctx context.Context, snap *Snapshot) error

	PlayURI(ctx context.Context, uri string) error
	Stop(ctx context.Context) error
	RampVolume(ctx context.Context, volume int) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Join(ctx context.Context, coordinatorUID string) error
	Unjoin(ctx context.Context) error
	LoadPlaylist(ctx context.Context, name string, clearQueue bool) error
	ClearQueue(ctx context.Context) error
	AddToQueue(ctx context.Context, uri string) error
}
