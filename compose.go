package firegex

import (
	"strconv"
	"strings"

	"github.com/pwnzer0tt1/firegexctl/manifest"
)

// hostSysctls are the kernel parameters the service tunes when it shares
// the host network namespace. Each is bound read/write under /sys_host.
var hostSysctls = []string{
	"net.ipv4.conf.all.route_localnet",
	"net.ipv4.ip_forward",
	"net.ipv4.conf.all.forwarding",
	"net.ipv6.conf.all.forwarding",
}

// sysctlPath maps a dotted sysctl name to its /proc/sys file.
func sysctlPath(name string) string {
	return "/proc/sys/" + strings.ReplaceAll(name, ".", "/")
}

// Manifest builds the compose file for d.
func (c Config) Manifest(d Deployment) manifest.Node {
	port := strconv.Itoa(int(d.Port))

	svc := []manifest.Field{
		manifest.KV("restart", manifest.Scalar("unless-stopped")),
		manifest.KV("container_name", manifest.Scalar(c.ContainerName)),
	}
	if d.Image.Local {
		svc = append(svc, manifest.KV("build", manifest.Scalar(".")))
	} else {
		svc = append(svc, manifest.KV("image", manifest.Scalar(c.ImageRef(d.Image.Tag))))
	}

	switch d.Exposure {
	case ExposureHost:
		svc = append(svc, manifest.KV("network_mode", manifest.Scalar("host")))
	default:
		svc = append(svc, manifest.KV("ports", manifest.Scalars(port+":"+port)))
	}

	env := []string{
		"PORT=" + port,
		"NTHREADS=" + strconv.FormatUint(uint64(d.Threads), 10),
	}
	if d.SecretHex != "" {
		env = append(env, "HEX_SET_PSW="+d.SecretHex)
	}
	svc = append(svc, manifest.KV("environment", manifest.Scalars(env...)))

	volumes := []manifest.Node{manifest.Scalar(c.VolumeKey + ":" + c.DataPath)}
	if d.Exposure == ExposureHost {
		for _, name := range hostSysctls {
			volumes = append(volumes, manifest.Map(
				manifest.KV("type", manifest.Scalar("bind")),
				manifest.KV("source", manifest.Scalar(sysctlPath(name))),
				manifest.KV("target", manifest.Scalar("/sys_host/"+name)),
			))
		}
	}
	svc = append(svc,
		manifest.KV("volumes", manifest.Seq(volumes...)),
		manifest.KV("cap_add", manifest.Scalars("NET_ADMIN")),
	)

	return manifest.Map(
		manifest.KV("services", manifest.Map(
			manifest.KV(c.ServiceName, manifest.Map(svc...)),
		)),
		manifest.KV("volumes", manifest.Map(
			manifest.KV(c.VolumeKey, manifest.Scalar("")),
		)),
	)
}
