package record

import (
	"time"

	"go.uber.org/zap"
)

// Field names accepted by the collection-fields configuration.
const (
	FieldLatitude    = "latitude"
	FieldLongitude   = "longitude"
	FieldAccuracy    = "accuracy"
	FieldAltitude    = "altitude"
	FieldSpeed       = "speed"
	FieldBearing     = "bearing"
	FieldDeviceModel = "device_model"
	FieldOSVersion   = "os_version"
	FieldInstallID   = "install_id"
)

var knownFields = map[string]bool{
	FieldLatitude:    true,
	FieldLongitude:   true,
	FieldAccuracy:    true,
	FieldAltitude:    true,
	FieldSpeed:       true,
	FieldBearing:     true,
	FieldDeviceModel: true,
	FieldOSVersion:   true,
	FieldInstallID:   true,
}

// DefaultFields is the collection set used when the config names none.
var DefaultFields = []string{
	FieldLatitude, FieldLongitude, FieldAccuracy, FieldInstallID,
}

// DeviceInfo holds the static device metadata attached to records when the
// corresponding fields are enabled.
type DeviceInfo struct {
	Model     string
	OSVersion string
	InstallID string
}

// Collector converts fixes into Records, attaching the configured
// collection fields. Which attributes are included is config-driven;
// unrecognized field names are logged once at construction and ignored.
type Collector struct {
	enabled map[string]bool
	device  DeviceInfo
}

func NewCollector(fields []string, device DeviceInfo, logger *zap.Logger) *Collector {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	enabled := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !knownFields[f] {
			logger.Warn("ignoring unknown collection field", zap.String("field", f))
			continue
		}
		enabled[f] = true
	}
	return &Collector{enabled: enabled, device: device}
}

// Collect builds an immutable Record from a fix.
func (c *Collector) Collect(fix Fix) Record {
	fields := make(map[string]any, len(c.enabled))
	if c.enabled[FieldLatitude] {
		fields[FieldLatitude] = fix.Position.Latitude
	}
	if c.enabled[FieldLongitude] {
		fields[FieldLongitude] = fix.Position.Longitude
	}
	if c.enabled[FieldAccuracy] {
		fields[FieldAccuracy] = fix.Position.Accuracy
	}
	if c.enabled[FieldAltitude] {
		fields[FieldAltitude] = fix.Position.Altitude
	}
	if c.enabled[FieldSpeed] {
		fields[FieldSpeed] = fix.Position.Speed
	}
	if c.enabled[FieldBearing] {
		fields[FieldBearing] = fix.Position.Bearing
	}
	if c.enabled[FieldDeviceModel] && c.device.Model != "" {
		fields[FieldDeviceModel] = c.device.Model
	}
	if c.enabled[FieldOSVersion] && c.device.OSVersion != "" {
		fields[FieldOSVersion] = c.device.OSVersion
	}
	if c.enabled[FieldInstallID] && c.device.InstallID != "" {
		fields[FieldInstallID] = c.device.InstallID
	}

	ctx := fix.Context
	if ctx == "" {
		ctx = ContextUnknown
	}
	return Record{
		// The wire format carries milliseconds. Anything finer would
		// survive in storage but not in the payload, so a delivered
		// record would stay newer than its endpoint's watermark.
		Timestamp: fix.ObservedAt.UTC().Truncate(time.Millisecond),
		Context:   ctx,
		Fields:    fields,
	}
}

// CollectAll converts a batch of fixes in arrival order.
func (c *Collector) CollectAll(fixes []Fix) []Record {
	records := make([]Record, 0, len(fixes))
	for _, f := range fixes {
		records = append(records, c.Collect(f))
	}
	return records
}
