package reputation

import "github.com/eventwish/fraudguard/pkg/domain/event"

// KeysFor lists the entities an event touches, in user, device, ip order.
// A device without a stated id is tracked by its fingerprint.
func KeysFor(evt *event.AnalyticsEvent) []Key {
	keys := make([]Key, 0, 3)
	if evt.UserID != "" {
		keys = append(keys, Key{Type: User, ID: evt.UserID})
	}
	switch {
	case evt.DeviceID != "":
		keys = append(keys, Key{Type: Device, ID: evt.DeviceID})
	case evt.DeviceFingerprint != "":
		keys = append(keys, Key{Type: Device, ID: evt.DeviceFingerprint})
	}
	if evt.IP != "" {
		keys = append(keys, Key{Type: IP, ID: evt.IP})
	}
	return keys
}
