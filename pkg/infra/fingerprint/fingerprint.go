package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Device is the server-side view of the device behind a request. Field order
// is part of the digest.
type Device struct {
	DeviceID       string `json:"deviceId"`
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browserVersion"`
	OS             string `json:"os"`
	OSVersion      string `json:"osVersion"`
	DeviceType     string `json:"deviceType"`
	Platform       string `json:"platform"`
	ScreenSize     string `json:"screenSize"`
}

// ID is the hex sha256 of the device's JSON form.
func (d Device) ID() string {
	raw, _ := json.Marshal(d)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// IPFingerprint is the hex sha256 of the trimmed address.
func IPFingerprint(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}
