package common

// The conflict-policy enumerations of §6.3 (seven types; both retry
// policies reuse FileExistsPolicy). Every enum begins at
// userPrompt=0, per spec, so a zero-value PolicyDefaults always means
// "ask the host" rather than silently picking a destructive default.

type CannotCreatePolicy int

const (
	CannotCreateUserPrompt CannotCreatePolicy = iota
	CannotCreateAutoRename
	CannotCreateSkip
)

type FileExistsPolicy int

const (
	FileExistsUserPrompt FileExistsPolicy = iota
	FileExistsAutoRename
	FileExistsResume
	FileExistsResumeOrOverwrite
	FileExistsOverwrite
	FileExistsSkip
)

type DirExistsPolicy int

const (
	DirExistsUserPrompt DirExistsPolicy = iota
	DirExistsAutoRename
	DirExistsJoinExisting
	DirExistsSkip
)

// RetryFilePolicy is reused for both "retry on file previously created by
// this session" and "retry on file previously resumed" (§6.3: "same
// six-value set as file already exists").
type RetryFilePolicy = FileExistsPolicy

type AsciiOnBinaryPolicy int

const (
	AsciiOnBinaryUserPrompt AsciiOnBinaryPolicy = iota
	AsciiOnBinaryIgnore
	AsciiOnBinaryRestartInBinary
	AsciiOnBinarySkip
)

type NonEmptyDirPolicy int

const (
	NonEmptyDirUserPrompt NonEmptyDirPolicy = iota
	NonEmptyDirDeleteIt
	NonEmptyDirSkip
)

type HiddenDeletePolicy int

const (
	HiddenDeleteUserPrompt HiddenDeletePolicy = iota
	HiddenDeleteIt
	HiddenDeleteSkip
)

type UnknownAttrsPolicy int

const (
	UnknownAttrsUserPrompt UnknownAttrsPolicy = iota
	UnknownAttrsIgnore
	UnknownAttrsSkip
)

// PolicyDefaults bundles one full set of conflict-resolution defaults.
// §6.3 asks for "the same schema ... duplicated for upload (separate
// storage)", so an Operation holds two of these: one for download-family
// operations, one for upload.
type PolicyDefaults struct {
	CannotCreateTarget CannotCreatePolicy
	TargetFileExists   FileExistsPolicy
	TargetDirExists    DirExistsPolicy
	RetryCreatedFile   RetryFilePolicy
	RetryResumedFile   RetryFilePolicy
	AsciiOnBinary      AsciiOnBinaryPolicy
	NonEmptyDirDelete  NonEmptyDirPolicy
	HiddenFileDelete   HiddenDeletePolicy
	HiddenDirDelete    HiddenDeletePolicy
	UnknownAttrs       UnknownAttrsPolicy
}

// TransferModeConfig is the mask-group + autodetect configuration of
// §6.3's last paragraph.
type TransferModeConfig struct {
	AutoDetectTransferMode bool
	UseAsciiTransferMode   bool
	AsciiMaskGroup         []string // e.g. "*.txt;*.htm;*.html"
	UsePassiveMode         bool
	UseListingsCache       bool
	ResumeMinFileSize      int64
}
