// Package common contains shared constants and sentinel errors used across
// fieldsync components.
package common

// DeviceIDHeaderName is the gRPC metadata key used to carry the device
// identifier on outbound requests.
const DeviceIDHeaderName = "x-device-id"
