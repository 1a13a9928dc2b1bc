package ebml

// Element IDs used by this parser, named after the teacher's matroska.go
// constants (spec.md §4.6). Some are declared but not read by this parser
// (for example idMuxingApp, idCodecPrivate, idAspectRatioType and the
// Colour children, which colorinfo.ParseWebMColorInfo matches on its own);
// EBML's schema has many more that are simply skipped over by walkElements
// never recursing into them.
const (
	idEBML            = 0x1A45DFA3
	idDocType         = 0x4282
	idSegment         = 0x18538067
	idInfo            = 0x1549A966
	idTimecodeScale   = 0x2AD7B1
	idDuration        = 0x4489
	idMuxingApp       = 0x4D80
	idWritingApp      = 0x5741
	idTitle           = 0x7BA9
	idTracks          = 0x1654AE6B
	idTrackEntry      = 0xAE
	idTrackNumber     = 0xD7
	idTrackType       = 0x83
	idCodecID         = 0x86
	idCodecPrivate    = 0x63A2
	idDefaultDuration = 0x23E383
	idTrackVideo      = 0xE0
	idTrackAudio      = 0xE1
	idPixelWidth      = 0xB0
	idPixelHeight     = 0xBA
	idDisplayWidth    = 0x54B0
	idDisplayHeight   = 0x54BA
	idDisplayUnit     = 0x54B2
	idAspectRatioType = 0x54B3
	idPixelCropTop    = 0x54AA
	idPixelCropBottom = 0x54BB
	idPixelCropLeft   = 0x54CC
	idPixelCropRight  = 0x54DD
	idColour          = 0x55B0
	idMasteringMeta   = 0x55D0
	idMasteringLumMax = 0x55D9
	idMaxCLL          = 0x55BC
	idRange           = 0x55B2
	idColourPrimaries = 0x55BA
	idTransferChar    = 0x55B9
	idMatrixCoeffs    = 0x55B1
	idSamplingRate    = 0xB5
	idChannels        = 0x9F
	idChapters        = 0x1043A770
	idEditionEntry    = 0x45B9
	idChapterAtom     = 0xB6
	idChapterTimeStart = 0x91
	idChapterDisplay  = 0x80
	idChapString      = 0x85
	idTags            = 0x1254C367
)

// trackTypeVideo/trackTypeAudio are Matroska TrackType enum values.
const (
	trackTypeVideo = 1
	trackTypeAudio = 2
)

// displayUnitPixels is the DisplayUnit value meaning DisplayWidth/Height
// are already in pixels (spec.md §4.6); other values (cm, inches, aspect
// ratio) are not display-pixel overrides and are ignored.
const displayUnitPixels = 0
