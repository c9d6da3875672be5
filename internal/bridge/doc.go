// Package bridge exposes remote instruments as capabilities over MQTT.
//
// Every instrument (dome, telescope, camera, scheduler, weather station,
// dome fan) is served by an external bridge process identified by a bridge
// id. The supervisor calls methods by publishing a CommandMessage on
// {prefix}/instrument/{id}/command; the bridge answers with an AckMessage
// carrying the same id on {prefix}/instrument/{id}/ack. Calls without an
// answer fail after the configured timeout.
//
// Bridges also publish EventMessages on {prefix}/instrument/{id}/event
// (slew_begin, park_complete, program_complete, ...). The bridge maps the
// id back to its capability name and hands the event to the supervisor.
//
// # Usage
//
//	b, err := bridge.New(bridge.Options{
//	    Bus:         mqttClient,
//	    Instruments: cfg.Supervisor.Instruments,
//	})
//	if err != nil {
//	    return err
//	}
//	b.SetEventHandler(sup.HandleEvent)
//	if err := b.Start(ctx); err != nil {
//	    return err
//	}
//	defer b.Close()
//	lookup := capability.NewStatic(b.Capabilities())
package bridge
