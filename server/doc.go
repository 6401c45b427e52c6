/*
Package server provides HTTP and Arrow Flight access to the block models of a
project, plus the TOML configuration shared with the bgrid command.

HTTP API, rooted at /api/:

	GET    elements[?parent=<composite>]        element list, or member names of a composite
	GET    elements/<name>/geometry             portable geometry JSON
	GET    elements/<name>/attributes           stored then calculated attribute names
	GET    elements/<name>/table                Arrow IPC stream; attributes, query, index, encode parameters
	POST   elements/<name>/table                store an Arrow IPC stream; overwrite, kind, description parameters
	POST   elements/<name>/calculated           JSON object of calculated attribute expressions
	DELETE elements/<name>/attributes/<attr>
	DELETE elements/<name>
	GET    changelog[?element=<name>]
	GET    storage/stats

When [auth] secret_key is set, POST and DELETE need an "Authorization: Bearer
<JWT>" header whose "user" claim is recorded in the changelog.

The Arrow Flight service, started when [server] flightAddress is set, lists
elements as flights, streams tables for a JSON FlightTicket and stores DoPut
streams under the descriptor path.  The same token goes in "authorization"
metadata.
*/
package server
