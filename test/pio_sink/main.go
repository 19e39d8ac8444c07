//go:build rp2040 || rp2350

package main

// PIO step sink bench: emits fixed windows at rising step rates on one
// axis. Watch the step pin on an oscilloscope; the pulse spacing should
// equal window/steps.

import (
	"machine"
	"time"

	"gostep/core"
	"gostep/targets/pio"
)

var rates = []struct {
	steps uint8
	ticks uint32 // window length in 12MHz ticks
	name  string
}{
	{1, 12000, "1 kHz"},
	{11, 12000, "11 kHz"},
	{11, 1200, "110 kHz"},
	{13, 240, "650 kHz"},
	{0, 12000, "quiet"},
}

func main() {
	time.Sleep(3 * time.Second)

	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})

	println("=== PIO step sink bench ===")
	println("Step: GP2, Dir: GP3")

	sink, err := pio.NewSink([]pio.AxisPins{{Step: machine.GP2, Dir: machine.GP3}})
	if err != nil {
		println("init error:", err.Error())
		for {
			led.High()
			time.Sleep(100 * time.Millisecond)
			led.Low()
			time.Sleep(100 * time.Millisecond)
		}
	}

	var steps [core.MaxSteppers]uint8
	dir := uint8(0)
	for cycle := 1; ; cycle++ {
		println("\n=== cycle", cycle, "===")
		for _, r := range rates {
			sink.Stop()
			println("rate:", r.name)
			steps[0] = r.steps

			led.High()
			start := time.Now()
			for time.Since(start) < 3*time.Second {
				// blocks while the FIFO is full, which paces the loop
				sink.Emit(dir, &steps, r.ticks)
			}
			led.Low()
			time.Sleep(500 * time.Millisecond)
		}
		dir ^= 1
		println("direction bit:", dir)
	}
}
