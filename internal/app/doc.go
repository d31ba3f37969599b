// Package app contains the texturesets application: it loads texture set
// definitions, wires the cache tiers and the compiler, and writes compiled
// textures. It is decoupled from any specific entrypoint like a CLI.
package app
