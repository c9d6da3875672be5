// Package responses implements the response handlers of the check list:
// the actions an item runs once its checks trigger.
//
// Responses that open the enclosure follow one discipline. The supervisor
// must allow the open (CanOpen), the instrument flag moves to OPERATING
// before anything moves, and any failure leaves the flag at ERROR. Closing
// moves an OPERATING flag back to READY and always attempts the physical
// close.
//
// Handlers never keep package-level state; RegisterAll builds a fresh set
// for one registry and one supervisor.
package responses
