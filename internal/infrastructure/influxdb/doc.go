// Package influxdb exports instrument telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. The Client is an
// acquisition sink: every sample of every batch becomes one point in the
// configured measurement, tagged with the attribute name and the batch
// source (push or poll). It is also a session observer, recording state
// changes in the lidar_session measurement.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "si3",
//	    Bucket:  "lidar",
//	}
//
//	client, err := influxdb.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	pipeline.AddSink("influxdb", client)
//
// # Field Layout
//
// Values are stored under a field named after their type so the field type
// never conflicts between attributes:
//
//	value  numbers (widened to float)
//	flag   booleans
//	text   strings and anything else
//
// # Error Handling
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Async write failures are delivered to the SetOnError
// callback wrapped in ErrWriteFailed. Connection and health check errors
// are returned directly.
package influxdb
