// Package registry maps module ids used in texture set definitions to the
// Go factories that build processing modules.
//
// The registry is populated once at startup, sealed, and then only read. It
// keeps the latest registered version of each module; definitions that pin an
// older version fail during assembly instead of silently using new code.
package registry
