// Package protocol implements the payload formats carried by the Neuton
// GATT service: gesture predictions on the outbound characteristic and
// frame-sized chunks of application data.
package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Gesture is a gesture label. Labels start at 1; the device reports
// zero-based classes.
type Gesture int

const (
	GestureIdle Gesture = iota + 1
	GestureUnknown
	GestureSwipeRight
	GestureSwipeLeft
	GestureDoubleShake
	GestureDoubleThumb
	GestureRotationRight
	GestureRotationLeft
)

var gestureNames = map[Gesture]string{
	GestureIdle:          "NO MOVEMENTS",
	GestureUnknown:       "UNKNOWN GESTURE",
	GestureSwipeRight:    "SWIPE RIGHT",
	GestureSwipeLeft:     "SWIPE LEFT",
	GestureDoubleShake:   "DOUBLE SHAKE",
	GestureDoubleThumb:   "DOUBLE THUMB",
	GestureRotationRight: "ROTATION RIGHT",
	GestureRotationLeft:  "ROTATION LEFT",
}

func (g Gesture) String() string {
	if name, ok := gestureNames[g]; ok {
		return name
	}
	return fmt.Sprintf("Gesture(%d)", int(g))
}

// Valid reports whether g is a known label.
func (g Gesture) Valid() bool {
	return g >= GestureIdle && g <= GestureRotationLeft
}

// NumClasses is the number of classes the model predicts.
const NumClasses = int(GestureRotationLeft)

// ErrMalformed is returned for payloads that are not a valid prediction.
var ErrMalformed = errors.New("protocol: malformed prediction")

// Prediction is one inference result as sent by the device.
type Prediction struct {
	Class       int // zero-based model output
	Probability int // percent, 0-100
}

// Gesture returns the label for the predicted class.
func (p Prediction) Gesture() Gesture {
	return Gesture(p.Class + 1)
}

func (p Prediction) String() string {
	return fmt.Sprintf("%s, %d%%", p.Gesture(), p.Probability)
}

// MarshalPrediction encodes p as ASCII "<class>,<probability>".
func MarshalPrediction(p Prediction) []byte {
	buf := strconv.AppendInt(nil, int64(p.Class), 10)
	buf = append(buf, ',')
	return strconv.AppendInt(buf, int64(p.Probability), 10)
}

// UnmarshalPrediction decodes a notification payload. Surrounding
// whitespace, including a trailing newline or NUL padding, is ignored.
func UnmarshalPrediction(data []byte) (Prediction, error) {
	data = bytes.TrimSpace(bytes.TrimRight(data, "\x00"))
	classField, probField, ok := bytes.Cut(data, []byte{','})
	if !ok {
		return Prediction{}, fmt.Errorf("%w: missing comma in %q", ErrMalformed, data)
	}

	class, err := strconv.Atoi(string(bytes.TrimSpace(classField)))
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: class: %w", ErrMalformed, err)
	}
	prob, err := strconv.Atoi(string(bytes.TrimSpace(probField)))
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: probability: %w", ErrMalformed, err)
	}

	p := Prediction{Class: class, Probability: prob}
	if !p.Gesture().Valid() {
		return Prediction{}, fmt.Errorf("%w: class %d out of range [0, %d)", ErrMalformed, class, NumClasses)
	}
	if prob < 0 || prob > 100 {
		return Prediction{}, fmt.Errorf("%w: probability %d out of range [0, 100]", ErrMalformed, prob)
	}
	return p, nil
}
