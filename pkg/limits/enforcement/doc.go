// Package enforcement deactivates and reactivates admin panels.
//
// # Overview
//
// Deactivation captures the panel's original password once, rotates the
// password on the remote panel, disables every active delegated user, and
// marks the panel Deactivated. Reactivation restores the captured password,
// enables the disabled users and marks the panel Active again.
//
// Every step is best-effort. A failed step is recorded in the returned
// Result and the remaining steps still run:
//
//   - a failed rotation leaves the stored password unchanged
//   - failed per-user calls are counted, never rolled back
//   - a missing original password is reported, not treated as success
//
// # Usage
//
//	ctrl := enforcement.NewController(store, client, notifier, enforcement.Config{
//	    UserCallInterval: 100 * time.Millisecond,
//	})
//
//	res, err := ctrl.Deactivate(ctx, panelID, panels.ReasonNonPayment)
//	if err != nil {
//	    return err
//	}
//	if !res.OK() {
//	    log.Warn("deactivation degraded", "error", res.Err())
//	}
//
// # Thread Safety
//
// Actions on the same panel are serialized by a Locker. The default is an
// in-process lock; RedisLocker shares the lock between processes.
package enforcement
