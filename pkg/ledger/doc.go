// Package ledger is the durable record of crowd tasks tally has created.
//
// # Overview
//
// The ledger maps a logical task key to a Job: the marketplace's external id
// for the task, how many assignments make it complete, and the reset
// generation it was created under. The orchestration engine consults it before
// creating anything, so that replaying a run after a crash never posts the same
// task twice.
//
// # Scoped access
//
// Every logical operation opens a Session, does its reads and writes, and
// closes it before returning. Nothing holds a session across a sleep or a
// marketplace call that may block for a long time. View and Update wrap this
// pattern and guarantee the session is closed on every exit path:
//
//	err := ledger.Update(ctx, store, func(s ledger.Session) error {
//		exists, err := s.Has(ctx, key)
//		if err != nil || exists {
//			return err
//		}
//		return s.Put(ctx, &ledger.Job{Key: key, ExternalID: hitID, ExpectedAssignments: 3})
//	})
//
// # Backends
//
// RedisStore keeps each job in a hash at tally:{namespace}:job:{key}.
// SQLStore keeps jobs in a tally_jobs table, on SQLite (single file, the
// closest match to an embedded key-value file) or Postgres.
//
// Writes are atomic per key. There is no locking across keys or processes;
// concurrent writers in different processes must be serialized by the caller.
package ledger
