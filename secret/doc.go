// Package secret collects the Firegex startup password.
//
// The password is only asked for on a fresh deployment. Once the data
// volume exists the service already has one and [Provisioner.Provision]
// returns nothing. The accepted password is hex encoded so it can sit in a
// compose environment entry without quoting.
package secret
