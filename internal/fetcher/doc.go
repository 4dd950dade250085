// Package fetcher implements the acquire stage: it resolves a manifest
// identifier to a remote reference, retrieves it through a pluggable backend
// (yt-dlp or go-getter), and stores it as <identifier>.<ext> in the raw
// directory.
package fetcher
