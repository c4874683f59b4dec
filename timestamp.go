package awsiot

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Timestamp is a point in time carried as epoch seconds on the wire.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to whole seconds.
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: time.Unix(t.Unix(), 0).UTC()}
}

// TimestampFromUnix creates a Timestamp from epoch seconds.
func TimestampFromUnix(sec int64) *Timestamp {
	return &Timestamp{Time: time.Unix(sec, 0).UTC()}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, t.Unix(), 10), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("%w: timestamp %s", ErrPayloadParse, data)
	}

	sec, frac := math.Modf(f)
	t.Time = time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
	return nil
}
