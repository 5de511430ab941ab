// Package cloud is a typed client for the vendor REST API.
//
// It covers account, home, device, device-state, settings-patch and
// firmware endpoints. Device objects are returned untyped (RawDevice)
// because their keys vary between firmware generations; the state package
// normalizes them.
//
// Errors are classified with errors.Is: auth.ErrAuthentication after a
// rejected retry, ErrTransient for network failures, timeouts and 5xx, and
// ErrProtocol for anything undecodable.
package cloud
