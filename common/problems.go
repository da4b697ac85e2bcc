package common

import "reflect"

// ProblemID enumerates §6.4's fixed problem codes using the same
// method-as-symbol idiom as LogLevel. Some symbols fall under one of the
// nine policy classes in §6.3 and the rest under none; PolicyClass below
// maps a ProblemID to the class that governs which ResponseOptions a host
// may offer for it.
type ProblemID uint32

var EProblem = ProblemID(0)

func (ProblemID) OK() ProblemID                             { return ProblemID(0) }
func (ProblemID) LowMem() ProblemID                          { return ProblemID(1) }
func (ProblemID) CannotCreateTgtFile() ProblemID             { return ProblemID(2) }
func (ProblemID) CannotCreateTgtDir() ProblemID              { return ProblemID(3) }
func (ProblemID) TgtFileAlreadyExists() ProblemID            { return ProblemID(4) }
func (ProblemID) TgtDirAlreadyExists() ProblemID             { return ProblemID(5) }
func (ProblemID) RetryOnCreatedFile() ProblemID              { return ProblemID(6) }
func (ProblemID) RetryOnResumedFile() ProblemID              { return ProblemID(7) }
func (ProblemID) AsciiTransferForBinaryFile() ProblemID      { return ProblemID(8) }
func (ProblemID) UnknownAttrs() ProblemID                    { return ProblemID(9) }
func (ProblemID) InvalidPathToDir() ProblemID                { return ProblemID(10) }
func (ProblemID) UnableToChangeDir() ProblemID               { return ProblemID(11) }
func (ProblemID) UnableToGetWorkingDir() ProblemID           { return ProblemID(12) }
func (ProblemID) DirExploreEndlessLoop() ProblemID           { return ProblemID(13) }
func (ProblemID) ListenFailure() ProblemID                   { return ProblemID(14) }
func (ProblemID) IncompleteListing() ProblemID               { return ProblemID(15) }
func (ProblemID) UnableToParseListing() ProblemID            { return ProblemID(16) }
func (ProblemID) DirIsHidden() ProblemID                     { return ProblemID(17) }
func (ProblemID) DirIsNotEmpty() ProblemID                   { return ProblemID(18) }
func (ProblemID) FileIsHidden() ProblemID                    { return ProblemID(19) }
func (ProblemID) InvalidPathToLink() ProblemID               { return ProblemID(20) }
func (ProblemID) UnableToResolveLink() ProblemID             { return ProblemID(21) }
func (ProblemID) UnableToDeleteFile() ProblemID              { return ProblemID(22) }
func (ProblemID) UnableToDeleteDir() ProblemID               { return ProblemID(23) }
func (ProblemID) UnableToChangeAttrs() ProblemID             { return ProblemID(24) }
func (ProblemID) UnableToResume() ProblemID                  { return ProblemID(25) }
func (ProblemID) ResumeTestFailed() ProblemID                { return ProblemID(26) }
func (ProblemID) TgtFileReadError() ProblemID                { return ProblemID(27) }
func (ProblemID) TgtFileWriteError() ProblemID               { return ProblemID(28) }
func (ProblemID) IncompleteDownload() ProblemID              { return ProblemID(29) }
func (ProblemID) UnableToDeleteSourceFile() ProblemID        { return ProblemID(30) }
func (ProblemID) UploadCannotCreateTgtDir() ProblemID        { return ProblemID(31) }
func (ProblemID) UploadCannotListTgtPath() ProblemID         { return ProblemID(32) }
func (ProblemID) UploadTgtDirAlreadyExists() ProblemID       { return ProblemID(33) }
func (ProblemID) UploadCrDirAutoRenFailed() ProblemID        { return ProblemID(34) }
func (ProblemID) UploadCannotListSrcPath() ProblemID         { return ProblemID(35) }
func (ProblemID) UnableToChangeToPathOnly() ProblemID        { return ProblemID(36) }
func (ProblemID) UnableToDeleteDiskDir() ProblemID           { return ProblemID(37) }
func (ProblemID) UploadCannotCreateTgtFile() ProblemID       { return ProblemID(38) }
func (ProblemID) UploadCannotOpenSrcFile() ProblemID         { return ProblemID(39) }
func (ProblemID) UploadTgtFileAlreadyExists() ProblemID      { return ProblemID(40) }
func (ProblemID) SrcFileInUse() ProblemID                    { return ProblemID(41) }
func (ProblemID) TgtFileInUse() ProblemID                    { return ProblemID(42) }
func (ProblemID) SrcFileReadError() ProblemID                { return ProblemID(43) }
func (ProblemID) IncompleteUpload() ProblemID                { return ProblemID(44) }
func (ProblemID) UnableToDeleteDiskFile() ProblemID          { return ProblemID(45) }
func (ProblemID) UploadAsciiResumeNotSupported() ProblemID   { return ProblemID(46) }
func (ProblemID) UploadUnableToResumeUnknownSize() ProblemID { return ProblemID(47) }
func (ProblemID) UploadUnableToResumeBiggerTgt() ProblemID   { return ProblemID(48) }
func (ProblemID) UploadFileAutoRenFailed() ProblemID         { return ProblemID(49) }
func (ProblemID) SkippedByUser() ProblemID                   { return ProblemID(50) }
func (ProblemID) UploadTestIfFinishedNotSupported() ProblemID {
	return ProblemID(51)
}

func (p ProblemID) String() string {
	if s := (enumHelper{}).String(p, reflect.TypeOf(p)); s != "" {
		return s
	}
	return "Unknown"
}

// PolicyClass identifies which of §6.3's conflict-policy enumerations
// governs the resolutions offered for a ProblemID.
type PolicyClass int

const (
	PolicyNone PolicyClass = iota
	PolicyCannotCreateTarget
	PolicyTargetFileExists
	PolicyTargetDirExists
	PolicyRetryCreatedFile
	PolicyRetryResumedFile
	PolicyAsciiOnBinary
	PolicyNonEmptyDirDelete
	PolicyHiddenDelete
	PolicyUnknownAttrs
)

// ClassFor maps a ProblemID to the policy class that governs it, per
// §6.4 ("each code maps to one or more user-offered resolutions through
// the policy tables above").
func ClassFor(p ProblemID) PolicyClass {
	switch p {
	case EProblem.CannotCreateTgtFile(), EProblem.CannotCreateTgtDir(),
		EProblem.UploadCannotCreateTgtDir(), EProblem.UploadCannotCreateTgtFile(),
		EProblem.UploadCrDirAutoRenFailed(), EProblem.UploadFileAutoRenFailed():
		return PolicyCannotCreateTarget
	case EProblem.TgtFileAlreadyExists(), EProblem.UploadTgtFileAlreadyExists(),
		EProblem.ResumeTestFailed(), EProblem.UploadUnableToResumeUnknownSize(),
		EProblem.UploadUnableToResumeBiggerTgt():
		return PolicyTargetFileExists
	case EProblem.TgtDirAlreadyExists(), EProblem.UploadTgtDirAlreadyExists():
		return PolicyTargetDirExists
	case EProblem.RetryOnCreatedFile():
		return PolicyRetryCreatedFile
	case EProblem.RetryOnResumedFile():
		return PolicyRetryResumedFile
	case EProblem.AsciiTransferForBinaryFile():
		return PolicyAsciiOnBinary
	case EProblem.DirIsNotEmpty():
		return PolicyNonEmptyDirDelete
	case EProblem.DirIsHidden(), EProblem.FileIsHidden():
		return PolicyHiddenDelete
	case EProblem.UnknownAttrs():
		return PolicyUnknownAttrs
	default:
		return PolicyNone
	}
}
