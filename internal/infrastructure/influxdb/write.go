package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/wschoenell/chimera-manager/internal/capability"
	"github.com/wschoenell/chimera-manager/internal/checklist"
	"github.com/wschoenell/chimera-manager/internal/instrument"
)

// Measurement names.
const (
	MeasurementItem    = "item_status"
	MeasurementFlag    = "instrument_flag"
	MeasurementWeather = "weather"
)

// RecordItem writes one item evaluation.
//
// Tags: site, item. Fields: status (numeric code), status_name, active.
func (c *Client) RecordItem(it *checklist.Item, status checklist.Status, at time.Time) {
	c.write(MeasurementItem,
		map[string]string{"item": it.Name},
		map[string]any{
			"status":      int(status),
			"status_name": status.String(),
			"active":      it.Active,
		},
		at,
	)
}

// RecordFlag writes an instrument flag change.
//
// Tags: site, instrument. Fields: flag, operable.
func (c *Client) RecordFlag(name string, flag instrument.Flag, at time.Time) {
	c.write(MeasurementFlag,
		map[string]string{"instrument": name},
		map[string]any{
			"flag":     flag.String(),
			"operable": flag.Operable(),
		},
		at,
	)
}

// RecordReading writes one weather station reading at the time it was taken.
//
// Tags: site, station, quantity. Fields: value.
func (c *Client) RecordReading(station string, q capability.Quantity, r capability.Reading) {
	at := r.Time
	if at.IsZero() {
		at = time.Now()
	}
	c.write(MeasurementWeather,
		map[string]string{"station": station, "quantity": string(q)},
		map[string]any{"value": r.Value},
		at,
	)
}

// WritePoint writes a custom point stamped now. The site tag is added.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.write(measurement, tags, fields, time.Now())
}

func (c *Client) write(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	all := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		all[k] = v
	}
	if c.site != "" {
		all["site"] = c.site
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, all, fields, at))
}
