// Package connector contains the Web Connector bounded context.
// It models the pull-based exchange between the desktop accounting client
// and external callers that queue work for it.
//
// Key concepts:
//   - Session: a ticket issued by a successful authenticate call, bound to one
//     username and one target company file for its lifetime
//   - Task: one unit of queued work, claimed by at most one session at a time
//   - SessionRegistry / TaskStore: ports implemented by the persistence layer
//
// Task lifecycle:
//
//	PENDING --claim--> SENT --reply--> DONE
//	                        \--reply(error)--> ERROR
//	SENT --requeue--> PENDING   (only when requeue-on-error is enabled)
package connector
