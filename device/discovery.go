package device

import (
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// usbVendorScores holds USB vendor ids of Arduino boards and the serial
// bridge chips they commonly ship with.
var usbVendorScores = map[string]int{
	"2341": 6, // Arduino
	"2A03": 6, // Arduino (arduino.org boards)
	"1A86": 5, // WCH CH340/CH341
	"0403": 5, // FTDI
	"10C4": 5, // Silicon Labs CP210x
}

var productKeywords = []string{
	"arduino",
	"ch340",
	"ch341",
	"cp210",
	"ftdi",
	"usb serial",
	"usb-serial",
	"usbmodem",
	"usbserial",
}

var portNameHints = []string{"ttyACM", "ttyUSB", "cu.usbmodem", "cu.usbserial", "COM"}

// listPorts is swapped out in tests.
var listPorts = enumerator.GetDetailedPortsList

// DiscoverPort enumerates serial endpoints and returns the name of the most
// plausible indicator device. Ports that score zero are never picked.
func DiscoverPort() (string, error) {
	ports, err := listPorts()
	if err != nil {
		return "", fmt.Errorf("enumerate serial ports: %w", err)
	}
	best := ""
	bestScore := 0
	for _, p := range ports {
		if score := scorePort(p); score > bestScore {
			best = p.Name
			bestScore = score
		}
	}
	if best == "" {
		return "", fmt.Errorf("no candidate device among %d serial ports", len(ports))
	}
	return best, nil
}

func scorePort(p *enumerator.PortDetails) int {
	score := 0
	if p.IsUSB {
		score += 2
		if v, ok := usbVendorScores[strings.ToUpper(p.VID)]; ok {
			score += v
		}
	}
	product := strings.ToLower(p.Product)
	for _, kw := range productKeywords {
		if strings.Contains(product, kw) {
			score += 3
			break
		}
	}
	for _, hint := range portNameHints {
		if strings.Contains(p.Name, hint) {
			score++
			break
		}
	}
	return score
}
