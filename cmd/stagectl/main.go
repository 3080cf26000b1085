/*
main.go - stagectl, a command-line client for the staging server

PURPOSE:
  Drives the same staging workflow engine the admin console uses, from a
  terminal: inspect pending work, edit a record, promote staging.

COMMANDS:
  stagectl domains                       List served domains
  stagectl status  <domain>              Reconcile staging against production
  stagectl add     <domain> <json>       Add a record and save to staging
  stagectl edit    <domain> <id> k=v...  Patch a record and save to staging
  stagectl delete  <domain> <id>         Delete a record from staging
  stagectl promote <domain>              Upload staging to production

GLOBAL FLAGS:
  --config    YAML config file (default: $STAGE_CONFIG)
  --base-url  Server API root, overrides config
  --format    text | json
  -v          Log engine activity to stderr

SEE ALSO:
  - workflow/engine.go: the engine each command runs
  - remote/client.go: the REST stores behind it
*/
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "stagectl:", err)
		os.Exit(1)
	}
}
