// Package config defines the format-agnostic result of loading texture set
// definitions, along with the Loader interface that format-specific packages
// implement.
//
// The `config.Model` is the single source of truth handed to the compiler.
// Concrete loaders, such as the HCL one, live in separate packages.
package config
