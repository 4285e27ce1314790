package filesystem

const (
	// TemporaryNamePrefix is the file name prefix used for all temporary files
	// and directories created by wisp; atomic writes stage under it. Nothing
	// in the watching or crawling code treats the prefix specially, so such
	// files are reported like any other. It may be suffixed with additional
	// elements if desired.
	TemporaryNamePrefix = ".wisp-temporary-"
)
