// Package notify is the operator channel of the supervisor.
//
// A Notifier implements capability.Notifier. Broadcasts and photos are
// published as JSON on the MQTT broadcast and photo topics. Questions are
// published on the ask topic with a fresh id; the first answer carrying
// that id, from the MQTT answer topic or from the control API, wins. A
// question nobody answers in time returns ok=false.
//
// ServeCommands subscribes to the operator command topic and hands each
// line (e.g. "/lock dome rain") to the supervisor.
package notify
