// Package mqtt provides MQTT broker connectivity for lidarlink.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) on the status topic
//
// Topics live under one configurable prefix (default "lidarlink"):
//
//	lidarlink/status            retained online/offline status (LWT)
//	lidarlink/state             retained snapshot of every attribute
//	lidarlink/attribute/{name}  retained latest value per attribute
//	lidarlink/telemetry         every acquisition batch
//	lidarlink/session           retained session state
//	lidarlink/command           operator commands (subscribed)
//	lidarlink/command/result    command results
//
// # Security Considerations
//
//   - Use TLS when the broker is not on the local host (cfg.Broker.TLS=true)
//   - Anyone allowed to publish on the command topic can operate the
//     instrument; restrict it with broker ACLs
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().Command(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
package mqtt
