package influxdb

import (
	"context"
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
)

// SensorStats summarises one sensor type over a time window.
type SensorStats struct {
	SensorType string  `json:"sensor_type"`
	Count      int     `json:"count"`
	Avg        float64 `json:"avg"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
}

// LatestReadings returns the most recent reading per sensor type within
// the last 24 hours. Sensor types with no recent data are absent from
// the map.
func (c *Client) LatestReadings(ctx context.Context) (map[string]SensorReading, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	flux := fmt.Sprintf(`
		from(bucket: %q)
		  |> range(start: -24h)
		  |> filter(fn: (r) => r["_measurement"] == %q)
		  |> filter(fn: (r) => r["_field"] == "value")
		  |> group(columns: ["sensor_type"])
		  |> last()
	`, c.cfg.Bucket, measurementSensors)

	result, err := c.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("%w: latest readings: %w", ErrQueryFailed, err)
	}

	latest := make(map[string]SensorReading)
	for result.Next() {
		r := readingFromRecord(result)
		latest[r.SensorType] = r
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating latest readings: %w", ErrQueryFailed, err)
	}
	return latest, nil
}

// History returns readings of one sensor type over the last hours,
// newest first, capped at limit.
func (c *Client) History(ctx context.Context, sensorType string, hours, limit int) ([]SensorReading, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if hours <= 0 {
		hours = 24
	}
	if limit <= 0 {
		limit = 100
	}

	flux := fmt.Sprintf(`
		from(bucket: %q)
		  |> range(start: -%dh)
		  |> filter(fn: (r) => r["_measurement"] == %q)
		  |> filter(fn: (r) => r["sensor_type"] == %q)
		  |> filter(fn: (r) => r["_field"] == "value")
		  |> sort(columns: ["_time"], desc: true)
		  |> limit(n: %d)
	`, c.cfg.Bucket, hours, measurementSensors, sensorType, limit)

	result, err := c.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("%w: history for %s: %w", ErrQueryFailed, sensorType, err)
	}

	var readings []SensorReading
	for result.Next() {
		readings = append(readings, readingFromRecord(result))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating history: %w", ErrQueryFailed, err)
	}
	return readings, nil
}

// Stats aggregates one sensor type over the last hours.
//
// Count of zero means no data in the window; Avg/Min/Max are zero then
// and must not be interpreted as readings.
func (c *Client) Stats(ctx context.Context, sensorType string, hours int) (SensorStats, error) {
	if !c.IsConnected() {
		return SensorStats{}, ErrNotConnected
	}
	if hours <= 0 {
		hours = 24
	}

	stats := SensorStats{SensorType: sensorType}

	count, found, err := c.aggregate(ctx, sensorType, hours, "count")
	if err != nil {
		return SensorStats{}, err
	}
	if !found || count == 0 {
		return stats, nil
	}
	stats.Count = int(count)

	for _, agg := range []struct {
		fn   string
		dest *float64
	}{
		{"mean", &stats.Avg},
		{"min", &stats.Min},
		{"max", &stats.Max},
	} {
		value, _, err := c.aggregate(ctx, sensorType, hours, agg.fn)
		if err != nil {
			return SensorStats{}, err
		}
		*agg.dest = value
	}

	return stats, nil
}

// aggregate runs one scalar Flux aggregation over a sensor type window.
func (c *Client) aggregate(ctx context.Context, sensorType string, hours int, fn string) (float64, bool, error) {
	flux := fmt.Sprintf(`
		from(bucket: %q)
		  |> range(start: -%dh)
		  |> filter(fn: (r) => r["_measurement"] == %q)
		  |> filter(fn: (r) => r["sensor_type"] == %q)
		  |> filter(fn: (r) => r["_field"] == "value")
		  |> group()
		  |> %s()
	`, c.cfg.Bucket, hours, measurementSensors, sensorType, fn)

	result, err := c.queryAPI.Query(ctx, flux)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s for %s: %w", ErrQueryFailed, fn, sensorType, err)
	}

	for result.Next() {
		value, ok := numericValue(result.Record().Value())
		if !ok {
			continue
		}
		return value, true, nil
	}
	if err := result.Err(); err != nil {
		return 0, false, fmt.Errorf("%w: iterating %s result: %w", ErrQueryFailed, fn, err)
	}
	return 0, false, nil
}

// readingFromRecord maps one Flux record back to a reading.
func readingFromRecord(result *api.QueryTableResult) SensorReading {
	record := result.Record()

	r := SensorReading{Timestamp: record.Time()}
	if value, ok := numericValue(record.Value()); ok {
		r.Value = value
	}
	if s, ok := record.ValueByKey("sensor_type").(string); ok {
		r.SensorType = s
	}
	if s, ok := record.ValueByKey("location").(string); ok {
		r.Location = s
	}
	if s, ok := record.ValueByKey("device_id").(string); ok {
		r.DeviceID = s
	}
	if s, ok := record.ValueByKey("unit").(string); ok {
		r.Unit = s
	}
	return r
}

// numericValue normalises the types Flux hands back for numbers.
func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case time.Duration:
		return float64(n), true
	}
	return 0, false
}
