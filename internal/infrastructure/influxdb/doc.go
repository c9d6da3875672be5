// Package influxdb records supervisor history in InfluxDB v2.
//
// It wraps influxdb-client-go with the supervisor's measurements:
//   - item_status: every item evaluation (status code and name)
//   - instrument_flag: every instrument flag change
//   - weather: readings taken by the weather station proxies
//
// Every point carries a "site" tag. Client implements the supervisor's
// Recorder interface.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { logger.Warn("influx write failed", "error", err) })
//
// # Error Handling
//
// Writes are batched and non-blocking; their failures reach the SetOnError
// callback. Connection and health check errors are returned directly.
package influxdb
