// Package core implements the in-process actor runtime.
//
// An ActorSystem owns a set of live actors addressed by path, a shared
// bounded worker pool, and the per-actor mailboxes that feed it. Callers
// obtain a LocalRef when an actor is created and talk to it with Tell
// (fire-and-forget) or Ask (bounded request/response). Handler failures are
// classified by the actor's SupervisorStrategy and the resulting Decision is
// enforced by the runtime: resume, restart, stop or escalate.
package core
