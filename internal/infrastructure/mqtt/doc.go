// Package mqtt provides the supervisor's MQTT client.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and a payload size limit
//   - Subscriptions, restored after every reconnect
//   - A retained online/offline status with a Last Will
//
// # Architecture
//
// MQTT is the bus between the supervisor and everything outside it:
//
//	instrument bridges ↔ broker ↔ supervisor ↔ broker ↔ operators
//
// Bridges expose domes, telescopes, weather stations and the scheduler as
// command/ack topic pairs and publish instrument events. Operators receive
// broadcasts and questions and send answers and commands. Topic names are
// built with Topics.
//
// # Security Considerations
//
//   - Enable TLS for any broker outside the observatory LAN (mqtt.broker.tls)
//   - Commands from the command topic can lock instruments and run items;
//     restrict publish rights on it in the broker ACL
//
// # Usage
//
//	topics := mqtt.NewTopics(cfg.Notifier.TopicPrefix)
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topics.AllInstrumentEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(topics.InstrumentID(topic), payload)
//	    })
package mqtt
