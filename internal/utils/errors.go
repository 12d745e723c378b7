package utils

import "errors"

var (
	// TorrentNotFoundError signals the provider no longer knows the torrent id.
	TorrentNotFoundError = errors.New("torrent not found")
	// NotCachedError signals the torrent is not instantly available and the
	// pipeline is configured to only accept cached content.
	NotCachedError = errors.New("torrent not cached")
	// NoVideoFilesError signals the torrent contains no usable media files.
	NoVideoFilesError = errors.New("no video files in torrent")
	// MountNotFoundError signals the torrent never appeared on the mount
	// within the refresh window.
	MountNotFoundError = errors.New("torrent folder not found on mount")
)
