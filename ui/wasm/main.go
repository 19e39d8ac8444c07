//go:build js && wasm

// Browser helpers for inspecting step streams captured from a serial link.
package main

import (
	"encoding/hex"
	"syscall/js"

	"gostep/protocol"
)

func main() {
	js.Global().Set("gostepWasm", js.ValueOf(map[string]interface{}{
		"encodeVLQ":    js.FuncOf(encodeVLQWrapper),
		"decodeVLQ":    js.FuncOf(decodeVLQWrapper),
		"crc16":        js.FuncOf(crc16Wrapper),
		"encodeStep":   js.FuncOf(encodeStepWrapper),
		"decodeStream": js.FuncOf(decodeStreamWrapper),
		"version":      protocol.Version,
	}))

	select {}
}

func hexArg(args []js.Value, i int) ([]byte, string) {
	if len(args) <= i {
		return nil, "missing hex string argument"
	}
	data, err := hex.DecodeString(args[i].String())
	if err != nil {
		return nil, "invalid hex string: " + err.Error()
	}
	return data, ""
}

// encodeVLQWrapper encodes a signed integer. Args: value. Returns hex.
func encodeVLQWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf("error: missing value argument")
	}
	output := protocol.NewScratchOutput()
	protocol.EncodeVLQInt(output, int32(args[0].Int()))
	return js.ValueOf(hex.EncodeToString(output.Result()))
}

// decodeVLQWrapper decodes a signed VLQ. Args: hex.
// Returns {value, consumed, error}.
func decodeVLQWrapper(this js.Value, args []js.Value) interface{} {
	data, msg := hexArg(args, 0)
	if msg != "" {
		return result(0, 0, msg)
	}
	rest := data
	value, err := protocol.DecodeVLQInt(&rest)
	if err != nil {
		return result(0, 0, err.Error())
	}
	return result(int(value), len(data)-len(rest), "")
}

func result(value, consumed int, errMsg string) js.Value {
	return js.ValueOf(map[string]interface{}{
		"value":    value,
		"consumed": consumed,
		"error":    errMsg,
	})
}

// crc16Wrapper returns the frame CRC of hex data, 0 on bad input
func crc16Wrapper(this js.Value, args []js.Value) interface{} {
	data, msg := hexArg(args, 0)
	if msg != "" {
		return js.ValueOf(0)
	}
	return js.ValueOf(int(protocol.CRC16(data)))
}

// encodeStepWrapper builds a one-record frame.
// Args: dir, ticks, steps (array of numbers). Returns hex.
func encodeStepWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return js.ValueOf("error: missing arguments")
	}
	steps := make([]uint8, args[2].Length())
	for i := range steps {
		steps[i] = uint8(args[2].Index(i).Int())
	}
	enc := protocol.NewFrameEncoder()
	if err := enc.Step(uint8(args[0].Int()), steps, uint32(args[1].Int())); err != nil {
		return js.ValueOf("error: " + err.Error())
	}
	if err := enc.Flush(); err != nil {
		return js.ValueOf("error: " + err.Error())
	}
	return js.ValueOf(hex.EncodeToString(enc.Take()))
}

// decodeStreamWrapper decodes a captured stream. Args: hex.
// Returns {records: [{id, dir, ticks, steps, session}], frames, bad, lost, error}.
func decodeStreamWrapper(this js.Value, args []js.Value) interface{} {
	data, msg := hexArg(args, 0)
	if msg != "" {
		return js.ValueOf(map[string]interface{}{"error": msg})
	}

	var records []interface{}
	dec := protocol.NewFrameDecoder(func(r *protocol.Record) error {
		steps := make([]interface{}, len(r.Steps))
		for i, s := range r.Steps {
			steps[i] = int(s)
		}
		records = append(records, map[string]interface{}{
			"id":      int(r.ID),
			"dir":     int(r.Dir),
			"ticks":   int(r.Ticks),
			"steps":   steps,
			"session": hex.EncodeToString(r.Session),
		})
		return nil
	})
	errMsg := ""
	if err := dec.Receive(protocol.NewSliceInputBuffer(data)); err != nil {
		errMsg = err.Error()
	}
	stats := dec.Stats()
	return js.ValueOf(map[string]interface{}{
		"records": records,
		"frames":  int(stats.Frames),
		"bad":     int(stats.BadFrames),
		"lost":    int(stats.Lost),
		"error":   errMsg,
	})
}
