// Package influxdb is the telemetry sink for mysa-core.
//
// It wraps influxdb-client-go v2 with a non-blocking, batching writer and
// two domain writes:
//
//   - WriteReading stores each decoded batch reading in "mysa_readings",
//     stamped with the time the device took it.
//   - WriteStateEvent stores the numeric fields of accepted state changes
//     in "device_state".
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	channel.SetReadingObserver(client.WriteReading)
//
// # Error Handling
//
// Writes are asynchronous. Batches that fail transiently (unreachable
// server, 429, 5xx) are resent a few times from a bounded buffer. Failures
// reach the callback set with SetOnError wrapped in ErrWriteRejected (the
// server refused the batch) or ErrWriteFailed. Stats counts both. Connect
// and HealthCheck return errors directly.
package influxdb
