package external

var (
	_ HEVCRewriter     = NopRewriter{}
	_ SegmenterLibrary = NopSegmenter{}
	_ FilesystemSaver  = NopSaver{}
)
