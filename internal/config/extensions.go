package config

// From Radarr Radarr/src/NzbDrone.Core/MediaFiles/MediaFileExtensions.cs
func getDefaultExtensions() []string {
	return []string{
		".m4v", ".3gp", ".nsv", ".ty", ".strm", ".rm", ".rmvb", ".m3u",
		".ifo", ".mov", ".qt", ".divx", ".xvid", ".bivx", ".nrg", ".pva",
		".wmv", ".asf", ".asx", ".ogm", ".ogv", ".m2v", ".avi", ".bin",
		".dat", ".dvr-ms", ".mpg", ".mpeg", ".mp4", ".avc", ".vp3",
		".svq3", ".nuv", ".viv", ".dv", ".fli", ".flv", ".wpl", ".img",
		".iso", ".vob", ".mkv", ".mk3d", ".ts", ".wtv", ".m2ts", ".webm",
	}
}
