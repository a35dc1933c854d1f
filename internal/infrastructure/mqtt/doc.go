// Package mqtt provides the MQTT transport between the QA console core and
// the device agents.
//
// Each device host runs an agent next to its physical or emulated device.
// The core publishes commands to the agent's command topic and the agent
// answers on its result topic. The broker (Mosquitto) decouples the two:
//
//	QA Console Core ↔ MQTT Broker ↔ Device Agents
//
// # Topics
//
//	qaconsole/command/{device_id}        commands to an agent
//	qaconsole/result/{device_id}         command results from an agent
//	qaconsole/agent/{device_id}/status   agent online/offline (retained)
//	qaconsole/system/status              core online/offline (retained, LWT)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	// Subscribe to all agent results
//	err = client.Subscribe(mqtt.Topics{}.AllAgentResults(), 1,
//	    func(topic string, payload []byte) error {
//	        // correlate with the in-flight command
//	        return nil
//	    })
//
//	// Dispatch a command
//	topic := mqtt.Topics{}.AgentCommand("pixel-7-01")
//	err = client.Publish(topic, payload, 1, false)
//
// Subscriptions are tracked and automatically restored after reconnection.
package mqtt
