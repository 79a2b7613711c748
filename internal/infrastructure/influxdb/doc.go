// Package influxdb stores sensor readings as time-series data.
//
// It wraps the official influxdb-client-go v2 library with the pieces the
// backend needs: batched non-blocking writes for the sensor ingest path,
// and the Flux queries behind the latest/history/stats API endpoints.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "smarthome",
//	    Bucket: "sensors",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteReading(influxdb.SensorReading{
//	    SensorType: "temperature",
//	    Value:      22.5,
//	    Unit:       "°C",
//	})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Writes are batched and flushed on the configured interval; write
// failures surface asynchronously through SetOnError. Queries are
// synchronous, honour the caller's context, and return errors directly.
package influxdb
