package data

// ContentKind distinguishes a Metadata value describing raw (decoded)
// samples from one describing coded (compressed) samples, since the two
// carry almost disjoint field sets.
type ContentKind int

const (
	ContentRaw ContentKind = iota
	ContentCoded
)

// FrameType distinguishes a coded frame that can be decoded without any
// preceding reference frame (IDR) from one that cannot.
type FrameType int

const (
	FrameIDR FrameType = iota
	FrameNonIDR
)

// PixelFormat names the planar sample layout of raw image data.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatYUV420Planar
	PixelFormatYUV420P10LE
	PixelFormatNV12
	PixelFormatRGBA
)

// CodedFormat names the bitstream syntax coded samples conform to.
type CodedFormat int

const (
	CodedFormatUnknown CodedFormat = iota
	CodedFormatHEVC
	CodedFormatAVC
	CodedFormatAAC
	CodedFormatTimedMetadata
	// CodedFormatHEVCExtractor marks a coded HEVC sample that also carries
	// an extractor track construct for tile-proxy assembly. Routing on
	// this discriminant, rather than on whether Data.Extractors() happens
	// to be non-empty, keeps a plain coded frame that incidentally carries
	// a leftover extractor list from being misrouted into the tile-proxy's
	// assembly path.
	CodedFormatHEVCExtractor
)

// CodecConfigKind indexes the out-of-band configuration records a coded
// stream carries (parameter sets, audio specific config).
type CodecConfigKind int

const (
	CfgVPS CodecConfigKind = iota
	CfgSPS
	CfgPPS
	CfgAudioSpecificConfig
)

// RegionPacking describes the region-wise packing (RWPK) layout applied to
// a projected frame: how packed-frame regions map back onto the
// equirectangular (or cubemap) projected frame.
type RegionPacking struct {
	ProjPictureWidth, ProjPictureHeight     uint32
	PackedPictureWidth, PackedPictureHeight uint32
	// ConstituentPictMatching marks a frame-packed stereo layout (e.g.
	// side-by-side or top-bottom) where each packed region also applies,
	// mirrored, to the frame's other half.
	ConstituentPictMatching bool
	Regions                 []PackedRegion
}

// PackedRegion is one rectangle of the region-wise packing: its location
// and size in both the projected and the packed picture.
type PackedRegion struct {
	ProjX, ProjY, ProjWidth, ProjHeight     uint32
	PackedX, PackedY, PackedWidth, PackedHeight uint32
	TransformType uint8
}

// Coverage describes the spherical region a track, or one of its
// sub-picture tiles, covers on the unit sphere.
type Coverage struct {
	CentreAzimuth, CentreElevation int32 // 2^-16 degrees, per OMAF convention
	AzimuthRange, ElevationRange   uint32
}

// RawMeta describes decoded (uncompressed) sample metadata.
type RawMeta struct {
	PresIndex   int64
	PresTime    Rational
	Duration    Rational
	PixelFormat PixelFormat
	Width       int
	Height      int
}

// CodedMeta describes compressed sample metadata.
type CodedMeta struct {
	PresIndex, CodingIndex int64
	CodingTime, PresTime   Rational
	Duration               Rational
	Format                 CodedFormat
	FrameType              FrameType
	CodecConfig            map[CodecConfigKind][]byte
	TrackID                uint32
	BitrateAvg, BitrateMax uint64
	SamplingRate           uint32
	RegionPacking          *RegionPacking
	SphericalCoverage      *Coverage
	QualityRank            *int
	InCodingOrder          bool
}

// Metadata is the discriminated union of sample-level description carried
// alongside a Data value's Storage, plus a type-indexed tag bag for
// ad-hoc, node-specific annotations that do not belong in the core shape.
type Metadata struct {
	Kind  ContentKind
	Raw   RawMeta
	Coded CodedMeta
	tags  tagBag
}

// NewRawMetadata returns a Metadata carrying raw sample description.
func NewRawMetadata(raw RawMeta) Metadata {
	return Metadata{Kind: ContentRaw, Raw: raw}
}

// NewCodedMetadata returns a Metadata carrying coded sample description.
func NewCodedMetadata(coded CodedMeta) Metadata {
	return Metadata{Kind: ContentCoded, Coded: coded}
}

// IsRaw reports whether m describes raw samples.
func (m Metadata) IsRaw() bool { return m.Kind == ContentRaw }

// IsCoded reports whether m describes coded samples.
func (m Metadata) IsCoded() bool { return m.Kind == ContentCoded }
