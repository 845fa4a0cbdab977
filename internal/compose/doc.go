// Package compose runs docker compose as a subprocess.
//
// Both the compose v2 CLI plugin ("docker compose") and the standalone
// "docker-compose" binary are supported. [Resolve] picks the first one that
// answers "version". Every call is scoped to one compose project and one
// manifest file:
//
//	r, err := compose.Resolve(ctx, "firegex")
//	if err != nil {
//	    return err
//	}
//	err = r.Run(ctx, "firegex-compose-tmp-file.yml", "up", "-d", "--build")
//
// The subprocess inherits the terminal and Run blocks until it exits.
package compose
