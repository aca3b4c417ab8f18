package soap

// Service identifies a Sonos UPnP service.
type Service string

const (
	ServiceAVTransport       Service = "AVTransport"
	ServiceRenderingControl  Service = "RenderingControl"
	ServiceContentDirectory  Service = "ContentDirectory"
	ServiceZoneGroupTopology Service = "ZoneGroupTopology"
	ServiceDeviceProperties  Service = "DeviceProperties"
	ServiceAlarmClock        Service = "AlarmClock"
)

var serviceTypes = map[Service]string{
	ServiceAVTransport:       "urn:schemas-upnp-org:service:AVTransport:1",
	ServiceRenderingControl:  "urn:schemas-upnp-org:service:RenderingControl:1",
	ServiceContentDirectory:  "urn:schemas-upnp-org:service:ContentDirectory:1",
	ServiceZoneGroupTopology: "urn:schemas-upnp-org:service:ZoneGroupTopology:1",
	ServiceDeviceProperties:  "urn:schemas-upnp-org:service:DeviceProperties:1",
	ServiceAlarmClock:        "urn:schemas-upnp-org:service:AlarmClock:1",
}

var controlPaths = map[Service]string{
	ServiceAVTransport:       "/MediaRenderer/AVTransport/Control",
	ServiceRenderingControl:  "/MediaRenderer/RenderingControl/Control",
	ServiceContentDirectory:  "/MediaServer/ContentDirectory/Control",
	ServiceZoneGroupTopology: "/ZoneGroupTopology/Control",
	ServiceDeviceProperties:  "/DeviceProperties/Control",
	ServiceAlarmClock:        "/AlarmClock/Control",
}

var eventPaths = map[Service]string{
	ServiceAVTransport:       "/MediaRenderer/AVTransport/Event",
	ServiceRenderingControl:  "/MediaRenderer/RenderingControl/Event",
	ServiceContentDirectory:  "/MediaServer/ContentDirectory/Event",
	ServiceZoneGroupTopology: "/ZoneGroupTopology/Event",
	ServiceDeviceProperties:  "/DeviceProperties/Event",
	ServiceAlarmClock:        "/AlarmClock/Event",
}

// EventPath returns the GENA subscription path of a service.
func EventPath(service Service) string {
	return eventPaths[service]
}

// Paths of the device web server.
const (
	DescriptionPath = "/xml/device_description.xml"
	IfconfigPath    = "/status/ifconfig"
	WifiControlPath = "/wifictrl"
)
