// Package device holds the device data model, the capability registry and
// the discovery catalogue.
//
// # Capability resolution
//
// Resolve maps a vendor model string to a Profile: the payload type the
// device expects in command bodies, its Family, the set of controllable
// Fields and its setpoint limits. Resolution is pure and never fails; an
// unknown model gets a setpoint-and-mode profile.
//
//	p := device.Resolve("BB-V2-0-L", device.ResolveOptions{UpgradedLite: true})
//	p.PayloadType           // 4
//	p.Family                // device.FamilyBaseboardLite
//	p.Supports(device.FieldFanSpeed) // false
//
// # Catalogue
//
// Registry caches homes, zones and devices discovered from the cloud and
// writes them through to SQLite:
//
//	repo := device.NewSQLiteRepository(db.DB)
//	reg := device.NewRegistry(repo, cfg.Account.UpgradedLiteDevices)
//	reg.SetLogger(log)
//	if err := reg.Load(ctx); err != nil {
//	    return err
//	}
//
// # Thread Safety
//
// Registry is safe for concurrent use. Every getter returns a deep copy.
package device
