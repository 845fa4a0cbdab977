// Package manifest builds and renders compose manifests.
//
// A manifest is a tree of [Node] values. Each node is exactly one of three
// variants: a scalar, an ordered mapping or a sequence. [Compile] turns a
// tree into the indented text docker compose reads.
//
//	root := manifest.Map(
//	    manifest.KV("services", manifest.Map(
//	        manifest.KV("web", manifest.Map(
//	            manifest.KV("image", manifest.Scalar("nginx")),
//	            manifest.KV("ports", manifest.Scalars("8080:80")),
//	        )),
//	    )),
//	)
//	fmt.Print(manifest.Compile(root))
//
// Mapping order is preserved so the output reads the way it was built.
// The compiler checks structure only; it does not know what compose
// accepts.
package manifest
