// Package quadraticvoting implements the quadratic-credit voting engine
// inside the governance context.
//
// The module owns vote lifecycle orchestration (create/end/delete), the
// per-voter credit budget accounting, and the quadratic tally, with outbox
// events feeding notification workers. Business rules live in the
// application/domain layers; infrastructure stays behind ports and adapters.
package quadraticvoting
