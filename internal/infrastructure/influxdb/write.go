package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// measurementSensors is the measurement sensor readings are stored under.
const measurementSensors = "sensor_readings"

// SensorReading is one stored sensor measurement.
type SensorReading struct {
	SensorType string    `json:"sensor_type"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	Location   string    `json:"location"`
	DeviceID   string    `json:"device_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// WriteReading records one sensor reading.
//
// The write is non-blocking; data is batched and sent asynchronously.
// A zero timestamp is stamped with the current time.
//
// Example:
//
//	client.WriteReading(influxdb.SensorReading{
//	    SensorType: "temperature",
//	    Value:      22.5,
//	    Unit:       "°C",
//	    Location:   "living_room",
//	    DeviceID:   "rpi-001",
//	})
func (c *Client) WriteReading(r SensorReading) {
	if !c.IsConnected() {
		return
	}

	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	point := write.NewPoint(
		measurementSensors,
		map[string]string{
			"sensor_type": r.SensorType,
			"location":    r.Location,
			"device_id":   r.DeviceID,
			"unit":        r.Unit,
		},
		map[string]interface{}{
			"value": r.Value,
		},
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the sensor reading shape,
// e.g. backend health counters.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
