// Package realtime holds the wire vocabulary of the realtime conversation API:
// the server events that arrive over the peer data channel, the payload
// shapes they carry, and the helpers that flatten those payloads to text.
//
// Frames are decoded with Decode and classified with Event.Kind:
//
//	ev, err := realtime.Decode(frame)
//	if err != nil {
//	    return err // malformed frame, drop it
//	}
//	switch ev.Kind() {
//	case realtime.KindResponseTextDelta:
//	    fmt.Print(realtime.NormalizeDelta(ev.Delta))
//	}
//
// The same semantic payload (spoken or typed text) is encoded under
// different shapes depending on turn role and completion phase, which is
// why NormalizeDelta, ExtractItemText and ExtractResponseText exist.
package realtime
