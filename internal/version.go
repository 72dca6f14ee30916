package internal

// Version is overridden at build time with
// -ldflags="-X github.com/zdao/zdao-node/internal.Version=v1.0.0"
var Version = "dev"
