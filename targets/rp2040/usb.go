//go:build rp2040 || rp2350

package main

import "machine"

// initUSB configures machine.Serial, which TinyGo maps to USB CDC-ACM
func initUSB() {
	_ = machine.Serial.Configure(machine.UARTConfig{})
}

func usbWrite(s string) {
	_, _ = machine.Serial.Write([]byte(s))
}
