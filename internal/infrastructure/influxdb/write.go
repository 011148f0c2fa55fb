package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteModuleSensor writes a single module sensor reading.
//
// This is the primary method for recording Habitron telemetry. The write is
// non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - routerID: Router the module hangs off (1-based bus index)
//   - moduleAddr: Module bus address
//   - moduleType: Hardware type name (e.g., "Smart Controller Mini")
//   - sensor: Sensor name (e.g., "temperature", "humidity", "illuminance")
//   - value: The reading in the sensor's native unit
//
// Example:
//
//	client.WriteModuleSensor(1, 3, "Smart Controller Mini", "temperature", 21.5)
func (c *Client) WriteModuleSensor(routerID, moduleAddr int, moduleType, sensor string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"module_sensors",
		map[string]string{
			"router": strconv.Itoa(routerID),
			"module": strconv.Itoa(moduleAddr),
			"type":   moduleType,
			"sensor": sensor,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteRouterPower writes a router supply-rail measurement.
//
// Used for tracking bus health over time: rail voltages and the per-channel
// current draw reported by the router status read.
//
// Parameters:
//   - routerID: Router bus index
//   - voltage5: 5V rail reading in volts
//   - voltage24: 24V rail reading in volts
//   - currents: Per-channel current draw in amps
func (c *Client) WriteRouterPower(routerID int, voltage5, voltage24 float64, currents []float64) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"voltage_5":  voltage5,
		"voltage_24": voltage24,
	}
	for ch, amps := range currents {
		fields["current_"+strconv.Itoa(ch)] = amps
	}

	point := write.NewPoint(
		"router_power",
		map[string]string{
			"router": strconv.Itoa(routerID),
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteRouterAvailability writes a router reachability transition.
//
// One point per transition rather than a periodic gauge; gaps in the series
// mean the state did not change.
//
// Parameters:
//   - routerID: Router bus index
//   - available: true when the router answered within the failure threshold
func (c *Client) WriteRouterAvailability(routerID int, available bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"router_availability",
		map[string]string{
			"router": strconv.Itoa(routerID),
		},
		map[string]interface{}{
			"available": available,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("poll_stats",
//	    map[string]string{"router": "1"},
//	    map[string]interface{}{"frames_sent": 1042, "timeouts": 3})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
