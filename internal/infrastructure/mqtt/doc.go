// Package mqtt provides the broker session for the realtime channel.
//
// This package manages:
//   - MQTT 3.1.1 over a WebSocket opened from a signed wss:// URL
//   - Message publishing with QoS acknowledgement
//   - Topic subscriptions, released on Close
//   - Classification of credential rejections (IsAuthFailure)
//
// # Architecture
//
// paho.mqtt.golang speaks MQTT; the socket underneath comes from a custom
// open-connection function that dials gorilla/websocket with the "mqtt"
// subprotocol. The signed URL expires quickly, so paho's auto-reconnect is
// disabled and each Client is a single connection. The realtime package
// decides when to build the next one.
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, mqtt.Config{
//	    Endpoint: endpoint,
//	    URL:      session.SignedBrokerURL,
//	    QoS:      1,
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.SubscribeMany(mqtt.Topics{}.Device(mac), 1, handle)
package mqtt
