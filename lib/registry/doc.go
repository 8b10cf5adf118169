/*
Package registry manages the open bases of a data directory.

A base is opened by the first session that acquires it and shared by every
session acquiring it afterwards. The registry keeps one Entry per open base
holding the database, the set of sessions using it and the usage counters.
When the last session releases the base, the database is closed and the
entry removed.

	reg, _ := registry.New(dir, factory)
	entry, err := reg.Acquire("logs", registry.Session{ID: id, User: "alice"}, opts)
	...
	entry.Root().Set("key", value)
	entry.CountPut()
	...
	reg.Release("logs", id)

Opening and Creating:

A base that is not open is opened if its directory exists. Otherwise the
caller needs the create permission (AcquireOptions.MayCreate) and must ask
for the base to be created (AcquireOptions.Create). Having the permission
alone yields store.ErrMissingCreate.

Concurrency:

Entries live in an xsync.MapOf. Acquire, Release and Drop run as atomic
Compute operations on the name, so a base is never opened twice and never
dropped while a session holds it.

Metadata:

Creation time, creator and cumulative counters of every base are kept in
<data>/.bases and survive restarts. Counters are flushed when a base is
closed. Process-wide counters are VictoriaMetrics counters that can be
exported in the Prometheus text format.
*/
package registry
