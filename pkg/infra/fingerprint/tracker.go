package fingerprint

import (
	"fmt"
	"net"
	"strings"

	"github.com/avct/uasurfer"
	"github.com/gofiber/fiber/v2"
)

// Request carries the identity hints a fiber request exposes.
type Request struct {
	IP             string
	UserAgent      string
	UserID         string
	DeviceID       string
	AcceptLanguage string
}

//go:generate mockery --name=Tracker --dir=. --output=../../../mocks --filename=fingerprint_tracker_mock.go --case=underscore --with-expecter
type Tracker interface {
	FromRequest(ctx *fiber.Ctx) Request
	Derive(deviceID, userAgent, platform, screenSize string) Device
}

type tracker struct{}

func NewFingerPrintTracker() Tracker {
	return &tracker{}
}

func (p *tracker) FromRequest(ctx *fiber.Ctx) Request {
	return Request{
		IP:             p.getByIp(ctx),
		UserAgent:      strings.TrimSpace(ctx.Get(fiber.HeaderUserAgent)),
		UserID:         strings.TrimSpace(p.getUserID(ctx)),
		DeviceID:       strings.TrimSpace(p.getDeviceID(ctx)),
		AcceptLanguage: ctx.Get(fiber.HeaderAcceptLanguage),
	}
}

// Derive builds the device descriptor from the user agent plus client hints.
func (p *tracker) Derive(deviceID, userAgent, platform, screenSize string) Device {
	ua := uasurfer.Parse(userAgent)
	d := Device{
		DeviceID:   deviceID,
		DeviceType: deviceType(ua.DeviceType),
		Platform:   platform,
		ScreenSize: screenSize,
	}
	if ua.Browser.Name != uasurfer.BrowserUnknown {
		d.Browser = strings.TrimPrefix(ua.Browser.Name.String(), "Browser")
		d.BrowserVersion = fmt.Sprintf("%d.%d", ua.Browser.Version.Major, ua.Browser.Version.Minor)
	}
	if ua.OS.Name != uasurfer.OSUnknown {
		d.OS = strings.TrimPrefix(ua.OS.Name.String(), "OS")
		d.OSVersion = fmt.Sprintf("%d.%d", ua.OS.Version.Major, ua.OS.Version.Minor)
	}
	if d.Platform == "" && ua.OS.Platform != uasurfer.PlatformUnknown {
		d.Platform = strings.TrimPrefix(ua.OS.Platform.String(), "Platform")
	}
	return d
}

func deviceType(t uasurfer.DeviceType) string {
	switch t {
	case uasurfer.DeviceComputer:
		return "computer"
	case uasurfer.DeviceTablet:
		return "tablet"
	case uasurfer.DevicePhone:
		return "phone"
	case uasurfer.DeviceConsole:
		return "console"
	case uasurfer.DeviceWearable:
		return "wearable"
	case uasurfer.DeviceTV:
		return "tv"
	default:
		return "unknown"
	}
}

func (p *tracker) getUserID(ctx *fiber.Ctx) string {
	userHeaders := []string{
		"X-User-ID",
		"X-User-Id",
		"X-UserID",
		"User-ID",
	}

	for _, header := range userHeaders {
		if value := ctx.Get(header); value != "" {
			return value
		}
	}
	return ""
}

func (p *tracker) getDeviceID(ctx *fiber.Ctx) string {
	for _, header := range []string{"X-Device-ID", "X-Device-Id"} {
		if value := ctx.Get(header); value != "" {
			return value
		}
	}
	return ""
}

func (p *tracker) getByIp(ctx *fiber.Ctx) string {
	ipHeaders := []string{
		"X-Real-IP",
		"X-Forwarded-For",
		"X-Original-Forwarded-For",
		"True-Client-IP",
		"CF-Connecting-IP",
	}

	for _, header := range ipHeaders {
		if value := ctx.Get(header); value != "" {
			ips := strings.Split(value, ",")
			if len(ips) > 0 {
				ip := strings.TrimSpace(ips[0])
				if parsedIP := net.ParseIP(ip); parsedIP != nil {
					return ip
				}
			}
		}
	}
	return strings.TrimSpace(ctx.IP())
}
