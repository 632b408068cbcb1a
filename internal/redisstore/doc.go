// Package redisstore implements admission.Store on Redis.
//
// Each commit runs as an optimistic transaction: WATCH the counter and
// record keys, check the watermark, then MULTI/EXEC the writes. If another
// client touches a watched key first, EXEC aborts and the commit reports
// admission.ErrConflict with nothing written.
//
// Layout under the configured namespace (default "msggate"):
//
//	<ns>:counter/<chain hex>               hash: highest, initialized_by, gateway_ref
//	<ns>:message/<chain hex>/<seq hex>     hash: digest, attempt_id
//	<ns>:records/<chain hex>               list of sequence ids in commit order
//	<ns>:counters                          set of initialized chain ids
//	<ns>:events                            stream of CounterInitialized / MessageAdmitted
package redisstore
