// Package extract turns uploaded bytes into review candidates. Archives are
// decompressed into a disposable Workspace that the caller must Close.
package extract
