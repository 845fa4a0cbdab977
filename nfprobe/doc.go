// Package nfprobe detects whether the kernel provides an xtables target,
// such as NFQUEUE, without shelling out to iptables.
//
// # Protocol
//
// The probe speaks nfnetlink to the nft_compat subsystem, the same query
// iptables-nft uses to negotiate extension revisions. One request is sent
// per revision, newest first, and one reply datagram is read back:
//
//   - a regular reply means the target is loaded;
//   - EPERM means the target exists but the caller is not privileged;
//   - ENOENT means this revision is missing, so the next one is tried;
//   - anything else, or no reply at all, makes the result Indeterminate.
//
// Indeterminate results are reported as supported. Failing to open the
// netlink socket usually means a restricted environment, not a kernel
// without the target.
//
// # Testing
//
// The message codec ([CompatRequest], [ParseReply]) is independent of the
// socket. [WithDialer] injects a fake [Conn] so revision negotiation can be
// exercised without a kernel.
package nfprobe
