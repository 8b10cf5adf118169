/*
Package users implements the credential store of the server: a mapping of
user name to password hash, global permissions and per-base overrides,
persisted as one JSON file (<data>/.users).

File Format:

	{
	    "admin": {
	        "pash": "$2a$10$...",
	        "perms": {"halt": true, "stat": true, ..., "range": true},
	        "base": {"logs": {"get": true, "range": 100}}
	    }
	}

Passwords are hashed with bcrypt. Files written by older servers may
contain a clear text "pass" field, which is hashed when the file is loaded,
or a hex encoded sha512 "pash", which is replaced by a bcrypt hash the first
time the user authenticates successfully.

Permissions:

Checks resolve as global OR per-base override. The range permission is
graded: false (or 0) denies listing, true allows unlimited rows and a
positive number caps the rows of one list call. The effective grant for a
base is the wider of the global grant and the override.

Every mutation rewrites the whole file through a temporary file and a
rename. Concurrent mutations from one process are serialized, there is no
locking across processes.
*/
package users
