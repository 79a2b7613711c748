// Package sensor ingests environmental readings from the realtime bus.
//
// The edge devices publish one combined sensor_data message per sampling
// cycle (temperature, humidity, light, motion). The ingestor splits it
// into individual readings, stores them in the time-series database,
// runs each value through the alert thresholds, and hands the batch to
// an optional callback for live fan-out to websocket clients.
package sensor
